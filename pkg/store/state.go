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

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"sigs.k8s.io/yaml"

	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/scsi"
)

const (
	BucketPrefix = "capture_"
	// OpenTimeout bounds the wait for the file lock held by another process
	OpenTimeout = 2 * time.Second
)

// ErrCaptureNotFound returned when no capture was saved under the name
type ErrCaptureNotFound struct {
	Name string
}

func (e ErrCaptureNotFound) Error() string {
	return fmt.Sprintf("Capture not found: %s", e.Name)
}

// State keeps reconstructed transaction sequences, one bucket per capture
type State struct {
	context.Context
	DB *bbolt.DB
}

func NewState(ctx context.Context, cfg *config.Config) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(cfg.DBPath, 0600, &bbolt.Options{Timeout: OpenTimeout})
	if err != nil {
		return nil, err
	}
	return &State{
		Context: ctx,
		DB:      db,
	}, nil
}

// Close ...
func (s *State) Close() {
	s.DB.Close()
}

func BucketName(name string) string {
	return fmt.Sprintf("%s%s", BucketPrefix, name)
}

func uint64ToByte(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// SaveCapture stores records under name, replacing what was saved there before
func (s *State) SaveCapture(name string, records []*scsi.Record) error {
	log.Debug("Saving capture: %s records: %d", name, len(records))
	return s.DB.Update(func(tx *bbolt.Tx) error {
		bucket := []byte(BucketName(name))
		if tx.Bucket(bucket) != nil {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(bucket)
		if err != nil {
			return err
		}
		for i, rec := range records {
			recBytes, err := yaml.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put(uint64ToByte(uint64(i)), recBytes); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadCapture returns the records saved under name in their original order
func (s *State) LoadCapture(name string) ([]*scsi.Record, error) {
	log.Debug("Loading capture: %s", name)
	var records []*scsi.Record
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName(name)))
		if b == nil {
			return ErrCaptureNotFound{Name: name}
		}
		return b.ForEach(func(_, recBytes []byte) error {
			rec := &scsi.Record{}
			if err := yaml.Unmarshal(recBytes, rec); err != nil {
				log.Error("Error while unmarshalling record %s", err)
				return err
			}
			records = append(records, rec)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return records, nil
}

// ListCaptures returns the sorted names of all saved captures
func (s *State) ListCaptures() ([]string, error) {
	log.Debug("Listing captures")
	names := []string{}
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			if strings.HasPrefix(string(name), BucketPrefix) {
				names = append(names, strings.TrimPrefix(string(name), BucketPrefix))
			}
			return nil
		})
	}); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *State) DeleteCapture(name string) error {
	log.Debug("Deleting capture: %s", name)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(BucketName(name)))
		if err == bbolt.ErrBucketNotFound {
			return ErrCaptureNotFound{Name: name}
		}
		return err
	})
}
