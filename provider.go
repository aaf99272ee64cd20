/*
   Copyright 2022 Joseph Cumines

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package ihtn

import (
	"fmt"
	"sort"
	"sync"
)

type (
	// DomainProvider yields a Domain bundle on demand, identified by a
	// domain-type string. Providers additionally implementing Available gate
	// their own registration.
	DomainProvider interface {
		DomainType() string
		Domain() (*Domain, error)
	}

	// Available is optionally implemented by providers that may be unusable in
	// the current environment.
	Available interface {
		Available() bool
	}

	// ProviderRegistry holds named domain providers.
	ProviderRegistry struct {
		mu        sync.RWMutex
		providers map[string]DomainProvider
	}
)

// NewProviderRegistry constructs an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]DomainProvider)}
}

// Register adds a provider under its domain type. Providers reporting
// themselves unavailable are skipped; duplicate types are an error.
func (r *ProviderRegistry) Register(p DomainProvider) error {
	if p == nil {
		return fmt.Errorf(`ihtn: nil provider`)
	}
	if gate, ok := p.(Available); ok && !gate.Available() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	domainType := p.DomainType()
	if _, ok := r.providers[domainType]; ok {
		return fmt.Errorf(`ihtn: provider %q already registered`, domainType)
	}
	r.providers[domainType] = p
	return nil
}

// Types lists the registered domain types, sorted.
func (r *ProviderRegistry) Types() (types []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return
}

// Build resolves a domain type to its Domain bundle.
func (r *ProviderRegistry) Build(domainType string) (*Domain, error) {
	r.mu.RLock()
	p, ok := r.providers[domainType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf(`ihtn: no provider for domain type %q`, domainType)
	}
	return p.Domain()
}

// BuildMerged resolves several domain types and merges their bundles in the
// given order.
func (r *ProviderRegistry) BuildMerged(domainTypes ...string) (*Domain, error) {
	domains := make([]*Domain, 0, len(domainTypes))
	for _, t := range domainTypes {
		d, err := r.Build(t)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return Merge(domains...), nil
}
