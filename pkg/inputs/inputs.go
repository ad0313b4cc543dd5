// Package inputs decodes the already-parsed input boundary of a calculation
// from yaml: sites, source models, logic trees and ground-motion models.
package inputs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
	"github.com/dd0wney/cluso-hazard/pkg/gmm"
	"github.com/dd0wney/cluso-hazard/pkg/logictree"
	"github.com/dd0wney/cluso-hazard/pkg/source"
	"github.com/dd0wney/cluso-hazard/pkg/validation"
)

var (
	ErrNoSites        = errors.New("no sites")
	ErrNoSourceModels = errors.New("no source models")
)

// Inputs is everything a calculation reads besides the engine configuration
type Inputs struct {
	Sites           []geo.Site           `yaml:"sites"`
	SourceModels    []source.ModelInput  `yaml:"source_models"`
	SourceModelTree logictree.Definition `yaml:"source_model_logic_tree"`
	GMMTree         logictree.Definition `yaml:"gmpe_logic_tree"`
	GMMs            []gmm.LogLinear      `yaml:"gmms"`
}

// Load reads inputs from a yaml file
func Load(path string) (*Inputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	return Parse(data)
}

// Parse decodes inputs from yaml, rejecting unknown keys
func Parse(data []byte) (*Inputs, error) {
	var in Inputs
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse inputs: %w", err)
	}
	return &in, nil
}

// Validate checks the inputs are complete. Tree and source semantics are
// checked later, when they are compiled.
func (in *Inputs) Validate() error {
	cv := validation.NewConfigValidator("inputs")
	cv.When(len(in.Sites) == 0, func(cv *validation.ConfigValidator) {
		cv.Custom("sites", func() error { return ErrNoSites })
	})
	cv.When(len(in.SourceModels) == 0, func(cv *validation.ConfigValidator) {
		cv.Custom("source_models", func() error { return ErrNoSourceModels })
	})
	for i := range in.GMMs {
		cv.Add(validation.Struct(in.GMMs[i])...)
	}
	return cv.Validate()
}

// SiteCollection returns the sites with dense ids in input order
func (in *Inputs) SiteCollection() *geo.SiteCollection {
	return geo.NewSiteCollection(in.Sites)
}

// Registry returns a registry holding the input ground-motion models
func (in *Inputs) Registry() (*gmm.Registry, error) {
	models := make([]gmm.Model, len(in.GMMs))
	for i, m := range in.GMMs {
		models[i] = m
	}
	return gmm.NewRegistry(models...)
}
