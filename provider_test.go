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
	"reflect"
	"testing"
)

type staticProvider struct {
	domainType string
	domain     *Domain
	available  bool
}

func (p *staticProvider) DomainType() string { return p.domainType }
func (p *staticProvider) Domain() (*Domain, error) {
	return p.domain, nil
}
func (p *staticProvider) Available() bool { return p.available }

func TestProviderRegistry(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(nil); err == nil {
		t.Error(`expected error`)
	}

	movement := &staticProvider{domainType: `movement`, domain: moveDomain(), available: true}
	if err := registry.Register(movement); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(movement); err == nil {
		t.Error(`expected duplicate error`)
	}

	// unavailable providers are silently skipped
	offline := &staticProvider{domainType: `offline`, available: false}
	if err := registry.Register(offline); err != nil {
		t.Error(err)
	}

	combat := &staticProvider{
		domainType: `combat`,
		available:  true,
		domain: NewDomain().AddAction(`strike`, func(state *State, args []any) (*State, error) {
			return state.Copy().Set(`struck`, args[0].(string), true), nil
		}),
	}
	if err := registry.Register(combat); err != nil {
		t.Fatal(err)
	}

	if got := registry.Types(); !reflect.DeepEqual(got, []string{`combat`, `movement`}) {
		t.Error(got)
	}

	dom, err := registry.Build(`movement`)
	if err != nil || !dom.HasAction(`move`) {
		t.Error(dom, err)
	}
	if _, err := registry.Build(`offline`); err == nil {
		t.Error(`expected error`)
	}

	merged, err := registry.BuildMerged(`movement`, `combat`)
	if err != nil || !merged.HasAction(`move`) || !merged.HasAction(`strike`) {
		t.Error(merged, err)
	}
}
