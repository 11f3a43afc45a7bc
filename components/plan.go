// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package components

import (
	"encoding/json"
)

// Resource acts as a tagged union over the shaped argument types for the
// resource kinds an [Engine] can provision.
//
// Only argument types within this package can implement Resource.
type Resource interface {
	resourceSigil()

	// Kind discriminates the concrete argument type, using fixed names
	// such as "function" or "site-bucket".
	Kind() string

	// LogicalName is the name the resource was declared under within its
	// deployment, before platform qualification.
	LogicalName() string
}

// Plan is the unit of work handed to an [Engine]: every resource declared
// through one [Deployment], validated and shaped, in declaration order.
//
// A plan is immutable once produced. Two deployments declared identically
// produce plans with identical resources; only the plan ID differs.
type Plan struct {
	id          string
	project     string
	environment string
	resources   []Resource
}

// ID returns the unique identifier assigned to this plan when it was
// produced.
func (p *Plan) ID() string {
	return p.id
}

// Project returns the project name the plan's resources belong to.
func (p *Plan) Project() string {
	return p.project
}

// Environment returns the environment the plan's resources belong to.
func (p *Plan) Environment() string {
	return p.environment
}

// Resources returns the shaped resource arguments in declaration order.
// The returned slice is a copy, so callers may rearrange it freely.
func (p *Plan) Resources() []Resource {
	ret := make([]Resource, len(p.resources))
	copy(ret, p.resources)
	return ret
}

// MarshalJSON implements [json.Marshaler]. Each resource appears with its
// kind discriminator alongside its shaped arguments, so that a consumer can
// decode the attributes into the right type without guessing.
func (p *Plan) MarshalJSON() ([]byte, error) {
	type planResource struct {
		Kind       string   `json:"kind"`
		Attributes Resource `json:"attributes"`
	}
	doc := struct {
		ID          string         `json:"id"`
		Project     string         `json:"project"`
		Environment string         `json:"environment"`
		Resources   []planResource `json:"resources"`
	}{
		ID:          p.id,
		Project:     p.project,
		Environment: p.environment,
		Resources:   make([]planResource, 0, len(p.resources)),
	}
	for _, res := range p.resources {
		doc.Resources = append(doc.Resources, planResource{
			Kind:       res.Kind(),
			Attributes: res,
		})
	}
	return json.Marshal(doc)
}
