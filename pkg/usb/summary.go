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
	"bytes"
	"io"
	"sort"

	"github.com/c1728p9/usbtrace/pkg/layers"
)

var (
	cbwMagic = []byte("USBC")
	cswMagic = []byte("USBS")
)

type EndpointKey struct {
	Bus      uint16
	Device   uint16
	Endpoint uint8
	Type     TransferType
}

// EndpointSummary holds traffic counters of one endpoint
type EndpointSummary struct {
	EndpointKey
	In    int
	Out   int
	Other int // control stages
	Bytes int
	CBWs  int // transfers shaped like a CBW
	CSWs  int // transfers shaped like a CSW
}

func (s *EndpointSummary) Transfers() int {
	return s.In + s.Out + s.Other
}

// LooksLikeCBW reports whether the transfer has the shape of a CBW
func LooksLikeCBW(t *Transfer) bool {
	return t.Direction == DirectionOut && len(t.Payload) == layers.CBWSize && bytes.HasPrefix(t.Payload, cbwMagic)
}

// LooksLikeCSW reports whether the transfer has the shape of a CSW
func LooksLikeCSW(t *Transfer) bool {
	return t.Direction == DirectionIn && len(t.Payload) == layers.CSWSize && bytes.HasPrefix(t.Payload, cswMagic)
}

// Summarize consumes src and returns counters per endpoint, ordered by bus,
// device, endpoint and type
func Summarize(src TransferSource) ([]*EndpointSummary, error) {
	index := make(map[EndpointKey]*EndpointSummary)
	for {
		t, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		key := EndpointKey{Bus: t.Bus, Device: t.Device, Endpoint: t.Endpoint, Type: t.Type}
		s, ok := index[key]
		if !ok {
			s = &EndpointSummary{EndpointKey: key}
			index[key] = s
		}
		switch t.Direction {
		case DirectionIn:
			s.In++
		case DirectionOut:
			s.Out++
		default:
			s.Other++
		}
		s.Bytes += len(t.Payload)
		if LooksLikeCBW(t) {
			s.CBWs++
		}
		if LooksLikeCSW(t) {
			s.CSWs++
		}
	}

	result := make([]*EndpointSummary, 0, len(index))
	for _, s := range index {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Bus != b.Bus {
			return a.Bus < b.Bus
		}
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		if a.Endpoint != b.Endpoint {
			return a.Endpoint < b.Endpoint
		}
		return a.Type < b.Type
	})
	return result, nil
}

// DetectMassStorage picks the device whose bulk endpoint carries the most
// CBWs. The filter covers all bulk endpoints of that device since the CSW and
// data in stages use another endpoint number than the CBW. It returns nil if
// no endpoint carries any CBW.
func DetectMassStorage(summaries []*EndpointSummary) *Filter {
	var best *EndpointSummary
	for _, s := range summaries {
		if s.Type != TransferBulk || s.CBWs == 0 {
			continue
		}
		if best == nil || s.CBWs > best.CBWs {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	bus, device, kind := best.Bus, best.Device, TransferBulk
	return &Filter{Bus: &bus, Device: &device, Type: &kind}
}
