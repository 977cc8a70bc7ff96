package kicad

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const connectorBlock = `$Comp
L QTH-090-01-F-D-A P1
U 1 1 55CCAA2D
P 2700 5850
F 0 "P1" H 2700 5750 50  0000 C CNN
F 1 "QTH-090-01-F-D-A" H 2700 5950 50  0000 C CNN
F 2 "extras:QTH-090-XX-X-D-A" H 2700 5850 50  0001 C CNN
F 3 "DOCUMENTATION" H 2700 5850 50  0001 C CNN
F 4 "SAM8195-ND" H 2700 5850 60  0001 C CNN "digipart"
	1    2700 5850
	1    0    0    -1
$EndComp
`

const powerBlock = `$Comp
L GND #PWR01
U 1 1 55CCAB00
P 3000 6000
F 0 "#PWR01" H 3000 5750 50  0001 C CNN
F 1 "GND" H 3000 5850 50  0000 C CNN
$EndComp
`

const unknownVendorBlock = `$Comp
L R R7
U 1 1 55CCAB10
F 0 "R7" V 3080 4500 50  0000 C CNN
F 4 "RC0603-10K" H 3000 4500 60  0001 C CNN "mouserpart"
$EndComp
`

func buildArchive(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestParseSchematicExtractsVendorField(t *testing.T) {
	parts := ParseSchematic("EESchema Schematic File Version 2\n" + connectorBlock + "$EndSCHEMATC\n")

	require.Len(t, parts, 1)
	assert.Equal(t, "P1", parts[0].Reference)
	require.NotNil(t, parts[0].LookupSource)
	assert.Equal(t, "Digikey", *parts[0].LookupSource)
	require.NotNil(t, parts[0].LookupID)
	assert.Equal(t, "SAM8195-ND", *parts[0].LookupID)
}

func TestParseSchematicDropsPowerSymbols(t *testing.T) {
	parts := ParseSchematic(powerBlock)
	assert.Empty(t, parts)
}

func TestParseSchematicUnknownVendorField(t *testing.T) {
	parts := ParseSchematic(unknownVendorBlock)

	require.Len(t, parts, 1)
	assert.Equal(t, "R7", parts[0].Reference)
	assert.Nil(t, parts[0].LookupSource)
	assert.Nil(t, parts[0].LookupID)
	assert.Equal(t, "", parts[0].Source())
}

func TestParseSchematicSkipsMalformedFieldLine(t *testing.T) {
	block := `$Comp
L C C3
F 4 "broken"
F 5 "490-1532-1-ND" H 1 1 60  0001 C CNN "digipart"
$EndComp`

	parts := ParseSchematic(block)

	require.Len(t, parts, 1)
	assert.Equal(t, "C3", parts[0].Reference)
	assert.Equal(t, "490-1532-1-ND", parts[0].Lookup())
}

func TestParseSchematicDropsBlockWithoutLocation(t *testing.T) {
	block := `$Comp
U 1 1 55CCAB10
F 4 "490-1532-1-ND" H 1 1 60  0001 C CNN "digipart"
$EndComp`

	assert.Empty(t, ParseSchematic(block))
}

func TestParseSchematicMatchesEachBlockSeparately(t *testing.T) {
	text := connectorBlock + "\n\n  " + powerBlock + unknownVendorBlock

	parts := ParseSchematic(text)

	require.Len(t, parts, 2)
	assert.Equal(t, "P1", parts[0].Reference)
	assert.Equal(t, "R7", parts[1].Reference)
}

func TestParseSchematicToleratesCRLF(t *testing.T) {
	crlf := bytes.ReplaceAll([]byte(connectorBlock), []byte("\n"), []byte("\r\n"))

	parts := ParseSchematic(string(crlf))

	require.Len(t, parts, 1)
	assert.Equal(t, "P1", parts[0].Reference)
	assert.Equal(t, "SAM8195-ND", parts[0].Lookup())
}

func TestParseArchive(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"board/main.sch":  connectorBlock + powerBlock,
		"board/power.sch": unknownVendorBlock,
		"board/main.pro":  connectorBlock,
		"README.txt":      "not a schematic",
	})

	parts, err := ParseArchive(archive, archive.Size())

	require.NoError(t, err)
	assert.Len(t, parts, 2)
}

func TestParseArchiveWithoutSchematics(t *testing.T) {
	archive := buildArchive(t, map[string]string{"board/main.kicad_pcb": "(kicad_pcb)"})

	_, err := ParseArchive(archive, archive.Size())

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.ErrorIs(t, err, ErrNoSchematics)
}

func TestParseArchiveRejectsBinarySchematic(t *testing.T) {
	archive := buildArchive(t, map[string]string{"board/main.sch": string([]byte{0xff, 0xfe, 0x00, 0x24})})

	_, err := ParseArchive(archive, archive.Size())

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "board/main.sch", parseErr.File)
}

func TestParseArchiveRejectsNonZip(t *testing.T) {
	data := bytes.NewReader([]byte("definitely not a zip"))

	_, err := ParseArchive(data, data.Size())

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}
