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

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/c1728p9/usbtrace/pkg/usb"
)

type ApiConfig struct {
	Address string `yaml:"address,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// FilterConfig is the endpoint analyzed when no filter flag is given
type FilterConfig struct {
	Bus      *uint16 `yaml:"bus,omitempty"`
	Device   *uint16 `yaml:"device,omitempty"`
	Endpoint *uint8  `yaml:"endpoint,omitempty"`
}

type Config struct {
	LogLevel  string        `yaml:"log_level"`
	DBPath    string        `yaml:"db_path"`
	BlockSize int           `yaml:"block_size"`
	Api       *ApiConfig    `yaml:"api,omitempty"`
	Filter    *FilterConfig `yaml:"filter,omitempty"`
	filepath  string
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(c.filepath, data, 0644)
}

func (c *Config) LoadConfig() error {
	data, err := ioutil.ReadFile(c.filepath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Load reads the config file if there is one, defaults stay in place otherwise
func (c *Config) Load() error {
	err := c.LoadConfig()
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) SetPath(path string) {
	c.filepath = path
}

func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// ApiListen returns the address the API server binds to
func (c *Config) ApiListen() string {
	if c.Api == nil {
		return fmt.Sprintf("%s:%d", DefaultApiAddress, DefaultApiPort)
	}
	return fmt.Sprintf("%s:%d", c.Api.Address, c.Api.Port)
}

// ApiURL returns the base URL clients use to reach the API server
func (c *Config) ApiURL() string {
	return fmt.Sprintf("http://%s", c.ApiListen())
}

// UsbFilter converts the default filter, nil fields stay wildcards
func (c *Config) UsbFilter() *usb.Filter {
	if c.Filter == nil {
		return &usb.Filter{}
	}
	return &usb.Filter{
		Bus:      c.Filter.Bus,
		Device:   c.Filter.Device,
		Endpoint: c.Filter.Endpoint,
	}
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir)
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), ConfigFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:  DefaultLogLevel,
		DBPath:    filepath.Join(DefaultConfigDir(), DBFile),
		BlockSize: DefaultBlockSize,
		Api: &ApiConfig{
			Address: DefaultApiAddress,
			Port:    DefaultApiPort,
		},
		filepath: DefaultConfigPath(),
	}
}
