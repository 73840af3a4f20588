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

package layers

import (
	"fmt"
)

// ErrTruncated returned when there are fewer bytes than a structure needs
type ErrTruncated struct {
	What string
	Want int
	Got  int
}

func (e ErrTruncated) Error() string {
	return fmt.Sprintf("%s truncated: need %d bytes, got %d", e.What, e.Want, e.Got)
}

// ErrMalformed returned when a field holds a value the format does not allow
type ErrMalformed struct {
	What string
}

func (e ErrMalformed) Error() string {
	return fmt.Sprintf("Malformed %s", e.What)
}

// ErrSignature returned when a BOT wrapper does not start with its magic
type ErrSignature struct {
	What string
	Want uint32
	Got  uint32
}

func (e ErrSignature) Error() string {
	return fmt.Sprintf("Wrong %s signature: must be 0x%08x, got 0x%08x", e.What, e.Want, e.Got)
}
