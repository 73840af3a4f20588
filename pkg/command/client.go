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

package command

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/imroc/req"

	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/srv"
)

// ApiClient talks to a running usbtrace API server
type ApiClient struct {
	ApiPrefix string
}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		ApiPrefix: fmt.Sprintf("%s%s", cfg.ApiURL(), srv.ApiPrefix),
	}
}

func (c *ApiClient) capturesUrl() string {
	return fmt.Sprintf("%s/captures", c.ApiPrefix)
}

func (c *ApiClient) captureUrl(name string) string {
	return fmt.Sprintf("%s/captures/%s", c.ApiPrefix, url.PathEscape(name))
}

func checkStatus(r *req.Resp, expected int) error {
	if r.Response().StatusCode != expected {
		body := strings.TrimSpace(r.String())
		if body == "" {
			return errors.New(r.Response().Status)
		}
		return fmt.Errorf("%s: %s", r.Response().Status, body)
	}
	return nil
}

// ListCaptures returns the names of the captures saved on the server
func (c *ApiClient) ListCaptures() ([]string, error) {
	r, err := req.Get(c.capturesUrl())
	if err != nil {
		return nil, err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return nil, err
	}
	var names []string
	if err := r.ToJSON(&names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetCapture returns the records of a saved capture
func (c *ApiClient) GetCapture(name string, withData bool) ([]*scsi.Record, error) {
	r, err := req.Get(c.captureUrl(name), req.QueryParam{"data": fmt.Sprint(withData)})
	if err != nil {
		return nil, err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return nil, err
	}
	var records []*scsi.Record
	if err := r.ToJSON(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteCapture removes a saved capture
func (c *ApiClient) DeleteCapture(name string) error {
	r, err := req.Delete(c.captureUrl(name))
	if err != nil {
		return err
	}
	return checkStatus(r, http.StatusNoContent)
}
