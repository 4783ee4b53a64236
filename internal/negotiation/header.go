package negotiation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// ParseOptionsHeader parses the CutieCart-Options header.
// Unknown keys are ignored so newer clients can talk to older servers.
//
// Examples:
//   - dry-run=?1              → DryRun true
//   - dry-run=?0, api="v1.2.0" → DryRun false, APIVersion v1.2.0
//   - api=v1                  → APIVersion v1 (token form)
//
// An empty header yields zero Options.
func ParseOptionsHeader(header string) (Options, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Options{}, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Options{}, fmt.Errorf("invalid %s header: %w", OptionsHeader, err)
	}

	var opts Options

	if member, ok := dict.Get("dry-run"); ok {
		item, ok := member.(httpsfv.Item)
		if !ok {
			return Options{}, errors.New("dry-run must be an item")
		}
		b, ok := item.Value.(bool)
		if !ok {
			return Options{}, errors.New("dry-run must be a boolean (?1 or ?0)")
		}
		opts.DryRun = &b
	}

	if member, ok := dict.Get("api"); ok {
		item, ok := member.(httpsfv.Item)
		if !ok {
			return Options{}, errors.New("api must be an item")
		}
		switch v := item.Value.(type) {
		case string:
			opts.APIVersion = v
		case httpsfv.Token:
			opts.APIVersion = string(v)
		default:
			return Options{}, errors.New("api must be a string or token")
		}
	}

	return opts, nil
}

// ParseDryRunQuery parses the dryrun query parameter. An empty value means unset.
func ParseDryRunQuery(v string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return nil, nil
	case "1", "true", "yes", "on":
		b := true
		return &b, nil
	case "0", "false", "no", "off":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("invalid dryrun value %q", v)
	}
}
