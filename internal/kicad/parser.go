// Package kicad extracts orderable components from KiCad schematic archives.
package kicad

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"bom-order-service/internal/models"
)

// SchematicSuffix marks the archive entries that are scanned
const SchematicSuffix = ".sch"

// PowerPrefix starts the reference of power and no-connect symbols
const PowerPrefix = "#"

const (
	referenceToken  = 2
	fieldValueToken = 2
	fieldNameToken  = 10
)

// VendorFields maps schematic field names to vendor names.
// Supporting another vendor means adding its field here.
var VendorFields = map[string]string{
	"digipart": "Digikey",
}

var componentBlock = regexp.MustCompile(`(?s)\$Comp\s*(.*?)\s*\$EndComp`)

// ErrNoSchematics is returned when an archive has no schematic entries
var ErrNoSchematics = errors.New("archive contains no schematic files")

// ParseError is fatal to the ingestion of one archive
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("parse archive: %v", e.Err)
	}
	return fmt.Sprintf("parse schematic %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseArchive reads a zip archive and returns the components of every
// schematic in it, in archive order.
func ParseArchive(r io.ReaderAt, size int64) ([]models.BOMPart, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	var parts []models.BOMPart
	found := false
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, SchematicSuffix) {
			continue
		}
		found = true

		text, err := readText(f)
		if err != nil {
			return nil, &ParseError{File: f.Name, Err: err}
		}
		parts = append(parts, ParseSchematic(text)...)
	}

	if !found {
		return nil, &ParseError{Err: ErrNoSchematics}
	}
	return parts, nil
}

func readText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", errors.New("schematic is not valid UTF-8 text")
	}
	return string(raw), nil
}

// ParseSchematic extracts the component blocks of one schematic file.
// Malformed blocks and fields are skipped, never reported.
func ParseSchematic(text string) []models.BOMPart {
	var parts []models.BOMPart
	for _, m := range componentBlock.FindAllStringSubmatch(text, -1) {
		part, ok := parseComponent(m[1])
		if !ok {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

// parseComponent handles the inner text of one $Comp block, e.g.
//
//	L QTH-090-01-F-D-A P1
//	F 4 "SAM8195-ND" H 2700 5850 60  0001 C CNN "digipart"
func parseComponent(block string) (models.BOMPart, bool) {
	var part models.BOMPart
	hasReference := false

	for _, line := range strings.Split(block, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "L":
			if len(fields) <= referenceToken {
				continue
			}
			part.Reference = fields[referenceToken]
			hasReference = true
		case "F":
			if len(fields) <= fieldNameToken {
				continue
			}
			vendor, ok := VendorFields[unquote(fields[fieldNameToken])]
			if !ok {
				continue
			}
			lookupID := unquote(fields[fieldValueToken])
			part.LookupSource = &vendor
			part.LookupID = &lookupID
		}
	}

	if !hasReference || part.Reference == "" || strings.HasPrefix(part.Reference, PowerPrefix) {
		return models.BOMPart{}, false
	}
	return part, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
