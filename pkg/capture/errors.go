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

package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
)

// ErrUnsupportedLinkType returned when a packet arrives on an interface whose
// link type has no registered decoder
type ErrUnsupportedLinkType struct {
	Interface int
	LinkType  layers.LinkType
}

func (e ErrUnsupportedLinkType) Error() string {
	return fmt.Sprintf("Packet on interface %d with unsupported link type %d", e.Interface, int(e.LinkType))
}

// ErrUnknownInterface returned when a packet references an interface that was not described in its section
type ErrUnknownInterface struct {
	Interface int
	Count     int
}

func (e ErrUnknownInterface) Error() string {
	return fmt.Sprintf("Packet references interface %d, section has only %d", e.Interface, e.Count)
}

// ErrContainer returned when the capture file itself can not be read
type ErrContainer struct {
	Err error
}

func (e ErrContainer) Error() string {
	return fmt.Sprintf("Error while reading capture: %s", e.Err)
}

func (e ErrContainer) Unwrap() error {
	return e.Err
}
