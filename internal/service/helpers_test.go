package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bom-order-service/internal/models"
	"bom-order-service/internal/redisclient"
	"bom-order-service/internal/store/memstore"
	"bom-order-service/internal/vendor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const placeholderImage = "/static/missing_part.png"

type fakeAdapter struct {
	mu     sync.Mutex
	name   string
	authed bool
	calls  int
	delay  time.Duration
	err    error
	resp   vendor.CatalogResponse
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		name:   vendor.DigikeyName,
		authed: true,
		resp: vendor.CatalogResponse{
			Manufacturer:           "Samtec",
			ManufacturerPartNumber: "QTH-090-01-F-D-A",
			Description:            "CONN HDR 180POS 0.5MM",
			DetailURL:              "https://www.digikey.com/product-detail/SAM8195-ND",
			ImageURL:               "https://media.digikey.com/qth.jpg",
			PriceBreaks: models.PriceBreaks{
				{Quantity: 1, UnitPrice: decimal.RequireFromString("9.50")},
				{Quantity: 10, UnitPrice: decimal.RequireFromString("8.25")},
			},
		},
	}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) IsAuthenticated(ctx context.Context) bool { return f.authed }

func (f *fakeAdapter) Query(ctx context.Context, lookupID string) (*vendor.CatalogResponse, error) {
	f.mu.Lock()
	f.calls++
	delay, err, resp := f.delay, f.err, f.resp
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	resp.VendorPartNumber = lookupID
	return &resp, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu        sync.Mutex
	uploaded  []*models.BOMUploadedEvent
	resolved  []*models.BOMResolvedEvent
	refreshed []*models.VendorPartRefreshedEvent
	created   []*models.OrderCreatedEvent
	archived  []*models.OrderArchivedEvent
}

func (p *recordingPublisher) PublishBOMUploaded(_ context.Context, e *models.BOMUploadedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploaded = append(p.uploaded, e)
	return nil
}

func (p *recordingPublisher) PublishBOMResolved(_ context.Context, e *models.BOMResolvedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, e)
	return nil
}

func (p *recordingPublisher) PublishVendorPartRefreshed(_ context.Context, e *models.VendorPartRefreshedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshed = append(p.refreshed, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishOrderArchived(_ context.Context, e *models.OrderArchivedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.archived = append(p.archived, e)
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", redisclient.ErrLockHeld
	}
	token := key + "-token"
	l.held[key] = token
	return token, nil
}

func (l *memLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func (m *memIdempotency) GetIdempotencyKey(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	return id, ok, nil
}

func (m *memIdempotency) SetIdempotencyKey(_ context.Context, key string, orderID int64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

// fixture wires a resolver over an in-memory store with a controllable clock
type fixture struct {
	store     *memstore.Store
	adapter   *fakeAdapter
	publisher *recordingPublisher
	resolver  *Resolver
	clock     time.Time
}

func newFixture(t *testing.T, propagate bool) *fixture {
	t.Helper()

	f := &fixture{
		store:     memstore.New(),
		adapter:   newFakeAdapter(),
		publisher: &recordingPublisher{},
		clock:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.resolver = NewResolver(f.store, vendor.NewRegistry(f.adapter), NewPropagator(propagate), f.publisher, ResolverConfig{
		FreshnessWindow:     24 * time.Hour,
		QueryTimeout:        time.Second,
		PlaceholderImageURL: placeholderImage,
	})
	f.resolver.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func strPtr(s string) *string { return &s }

func digikeyPart(ref, vpn string) models.BOMPart {
	return models.BOMPart{Reference: ref, LookupSource: strPtr(vendor.DigikeyName), LookupID: strPtr(vpn)}
}

func (f *fixture) createBOM(t *testing.T, name string, parts ...models.BOMPart) *models.BillOfMaterials {
	t.Helper()
	bom := &models.BillOfMaterials{Name: name, Archive: name + ".zip", UploadedAt: f.clock, UserID: 1, Parts: parts}
	require.NoError(t, f.store.CreateBOM(context.Background(), bom))
	return bom
}
