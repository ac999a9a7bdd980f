package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

var (
	locationsBucket = []byte("locations")
	metaBucket      = []byte("meta")
	segmentsKey     = []byte("segments")
	lastDocKey      = []byte("last_document")
)

// Open loads (creating if needed) a catalog persisted in the bolt file at
// path. Every location must point at a live segment or Open fails with
// ErrCatalogInconsistency.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w: %w", path, apperrors.ErrStorageIO, err)
	}
	c := New()
	c.db = db

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(locationsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising catalog buckets: %w: %w", apperrors.ErrStorageIO, err)
	}

	if err := c.load(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load() error {
	return c.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(metaBucket).Get(segmentsKey); raw != nil {
			if err := json.Unmarshal(raw, &c.segments); err != nil {
				return fmt.Errorf("decoding segment list: %w: %w", apperrors.ErrCatalogInconsistency, err)
			}
		}
		if raw := tx.Bucket(metaBucket).Get(lastDocKey); raw != nil {
			if err := json.Unmarshal(raw, &c.lastDoc); err != nil {
				return fmt.Errorf("decoding document high-water mark: %w: %w", apperrors.ErrCatalogInconsistency, err)
			}
			c.hasDocs = true
		}
		for _, id := range c.segments {
			c.refs[id] = 0
		}
		return tx.Bucket(locationsBucket).ForEach(func(k, v []byte) error {
			var locs []index.Location
			if err := json.Unmarshal(v, &locs); err != nil {
				return fmt.Errorf("decoding locations of %q: %w: %w", k, apperrors.ErrCatalogInconsistency, err)
			}
			for _, loc := range locs {
				if _, ok := c.refs[loc.SegmentID]; !ok {
					return fmt.Errorf("keyword %q references unknown segment %d: %w",
						k, loc.SegmentID, apperrors.ErrCatalogInconsistency)
				}
				c.refs[loc.SegmentID]++
			}
			c.locations[string(k)] = locs
			return nil
		})
	})
}

// persist commits changed keywords, the segment list and, when given, the
// document high-water mark in one bolt transaction. A nil db means the
// catalog is in memory only.
func (c *Catalog) persist(changed map[string][]index.Location, segments []uint64, lastDoc *uint64) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(locationsBucket)
		for kw, locs := range changed {
			data, err := json.Marshal(locs)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(kw), data); err != nil {
				return err
			}
		}
		meta := tx.Bucket(metaBucket)
		if lastDoc != nil {
			data, err := json.Marshal(*lastDoc)
			if err != nil {
				return err
			}
			if err := meta.Put(lastDocKey, data); err != nil {
				return err
			}
		}
		data, err := json.Marshal(segments)
		if err != nil {
			return err
		}
		return meta.Put(segmentsKey, data)
	})
	if err != nil {
		return fmt.Errorf("committing catalog: %w: %w", apperrors.ErrStorageIO, err)
	}
	return nil
}
