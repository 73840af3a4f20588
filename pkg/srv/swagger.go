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

package srv

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"
)

const (
	DocsPath = "docs"
)

//go:embed swagger.json
var swaggerSpec []byte

// LoadSpec parses the API description served under /api/swagger.json
func LoadSpec() (*loads.Document, error) {
	return loads.Analyzed(json.RawMessage(swaggerSpec), "")
}

// withDocs serves the API description and its Redoc page in front of next
func withDocs(doc *loads.Document, next http.Handler) http.Handler {
	redoc := middleware.Redoc(middleware.RedocOpts{
		BasePath: ApiPrefix,
		Path:     DocsPath,
		SpecURL:  ApiPrefix + "/swagger.json",
		Title:    doc.Spec().Info.Title,
	}, next)
	return middleware.Spec(ApiPrefix, doc.Raw(), redoc)
}
