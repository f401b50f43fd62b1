package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/unclebandit/outreach-engine/internal/service"
)

// Columns with a fixed meaning. Every other column becomes an attribute
// named after its header.
const (
	colNaturalKey = "natural_key"
	colCategory   = "category"
	colAddress    = "address"
)

// readLeads parses a CSV with a header row into import requests. Blank cells
// are left out of the attributes so templates fall back to their defaults.
func readLeads(r io.Reader, sequenceType string) ([]service.ImportRequest, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty csv")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	if !contains(header, colNaturalKey) {
		return nil, fmt.Errorf("csv header must contain %q", colNaturalKey)
	}

	var leads []service.ImportRequest
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		req := service.ImportRequest{SequenceType: sequenceType, Attrs: map[string]string{}}
		for i, name := range header {
			value := strings.TrimSpace(row[i])
			switch name {
			case colNaturalKey:
				req.NaturalKey = value
			case colCategory:
				req.Category = value
			case colAddress:
				req.Address = value
			default:
				if value != "" && name != "" {
					req.Attrs[name] = value
				}
			}
		}
		leads = append(leads, req)
	}
	return leads, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
