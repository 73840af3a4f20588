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

package scsi

import (
	"fmt"
)

// ErrValidation describes why a transfer can not take its place in a BOT exchange.
// It never leaves the reconstructor, it is only logged.
type ErrValidation struct {
	ID    int
	Stage string
	Field string
	Value string
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("Wrong %s %s for packet %d: %s", e.Stage, e.Field, e.ID, e.Value)
}
