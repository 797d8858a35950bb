package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nats-io/nats.go"
)

// ObjectStore keeps profiles in a JetStream object store bucket so every
// node on the bus sees the same enrolled speakers.
type ObjectStore struct {
	obs    nats.ObjectStore
	bucket string
	log    *slog.Logger
}

// OpenObjectStore binds to bucket, creating it when it does not exist.
func OpenObjectStore(js nats.JetStreamContext, bucket string, log *slog.Logger) (*ObjectStore, error) {
	obs, err := js.ObjectStore(bucket)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) && !errors.Is(err, nats.ErrBucketNotFound) {
			return nil, fmt.Errorf("bind object store %q: %w", bucket, err)
		}
		obs, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "enrolled speaker profiles",
		})
		if err != nil {
			return nil, fmt.Errorf("create object store %q: %w", bucket, err)
		}
		log.Info("created profile bucket", slog.String("bucket", bucket))
	}
	return &ObjectStore{obs: obs, bucket: bucket, log: log}, nil
}

func (s *ObjectStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := s.obs.PutBytes(name, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func (s *ObjectStore) List(ctx context.Context) ([]Profile, error) {
	infos, err := s.obs.List(nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	profiles := make([]Profile, 0, len(infos))
	for _, info := range infos {
		raw, err := s.obs.GetBytes(info.Name, nats.Context(ctx))
		if err != nil {
			return nil, fmt.Errorf("get profile %q: %w", info.Name, err)
		}
		profiles = append(profiles, Profile{Name: info.Name, Data: Decode(raw)})
	}
	return profiles, nil
}

func (s *ObjectStore) Close() error {
	return nil
}
