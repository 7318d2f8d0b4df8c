// Package analysis is the competitive-analysis demo pipeline: research,
// analysis and synthesis phases that write their artifacts into a workspace.
package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Request describes one analysis run.
type Request struct {
	Company  string `yaml:"company"`
	Industry string `yaml:"industry"`
	Retries  int    `yaml:"retries"`
	// FailAttempts makes a phase throw on its first N attempts, which
	// exercises checkpoint recovery without a real upstream.
	FailAttempts map[string]int `yaml:"fail_attempts"`
}

// LoadRequest reads a YAML request file. Unknown keys are rejected.
func LoadRequest(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Request{}, fmt.Errorf("read request: %w", err)
	}
	return ParseRequest(data)
}

func ParseRequest(data []byte) (Request, error) {
	var req Request
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	req.Company = strings.TrimSpace(req.Company)
	req.Industry = strings.TrimSpace(req.Industry)
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r Request) Validate() error {
	var errs []error
	if r.Company == "" {
		errs = append(errs, errors.New("company is required"))
	}
	if r.Industry == "" {
		errs = append(errs, errors.New("industry is required"))
	}
	if r.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", r.Retries))
	}
	for phase, n := range r.FailAttempts {
		if n < 0 {
			errs = append(errs, fmt.Errorf("fail_attempts.%s must not be negative", phase))
		}
	}
	return errors.Join(errs...)
}
