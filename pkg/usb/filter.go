/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package usb

import (
	"fmt"
	"strings"
)

// Filter selects transfers of one bus/device/endpoint. A nil field matches anything.
type Filter struct {
	Bus      *uint16
	Device   *uint16
	Endpoint *uint8
	Type     *TransferType
}

func (f *Filter) Match(t *Transfer) bool {
	if f.Bus != nil && *f.Bus != t.Bus {
		return false
	}
	if f.Device != nil && *f.Device != t.Device {
		return false
	}
	if f.Endpoint != nil && *f.Endpoint != t.Endpoint {
		return false
	}
	if f.Type != nil && *f.Type != t.Type {
		return false
	}
	return true
}

// IsEmpty returns true if the filter lets everything through
func (f *Filter) IsEmpty() bool {
	return f.Bus == nil && f.Device == nil && f.Endpoint == nil && f.Type == nil
}

func (f *Filter) String() string {
	var parts []string
	if f.Bus != nil {
		parts = append(parts, fmt.Sprintf("bus=%d", *f.Bus))
	}
	if f.Device != nil {
		parts = append(parts, fmt.Sprintf("device=%d", *f.Device))
	}
	if f.Endpoint != nil {
		parts = append(parts, fmt.Sprintf("endpoint=%d", *f.Endpoint))
	}
	if f.Type != nil {
		parts = append(parts, fmt.Sprintf("type=%s", *f.Type))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// Apply wraps src so that only matching transfers come out of it
func (f *Filter) Apply(src TransferSource) TransferSource {
	return &filteredSource{src: src, filter: f}
}

type filteredSource struct {
	src    TransferSource
	filter *Filter
}

func (s *filteredSource) Next() (*Transfer, error) {
	for {
		t, err := s.src.Next()
		if err != nil {
			return nil, err
		}
		if s.filter.Match(t) {
			return t, nil
		}
	}
}
