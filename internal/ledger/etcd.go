package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const BASEDIR = "digestledge/owed"

// entries outlive their deadline by this much before etcd drops them
const leaseSlack = 24 * time.Hour

// EtcdStore persists entries under BASEDIR/<owner>/<instance id>, each bound to a
// lease expiring well after its termination deadline.
type EtcdStore struct {
	client  *clientv3.Client
	owner   string
	timeout time.Duration
}

func NewEtcdStore(client *clientv3.Client, owner string) *EtcdStore {
	return &EtcdStore{client: client, owner: owner, timeout: 2 * time.Second}
}

func (s *EtcdStore) getEtcdKey(id string) string {
	return fmt.Sprintf("%s/%s/%s", BASEDIR, s.owner, id)
}

// Put binds the entry to a fresh lease sized on its deadline. The lease of the entry
// it replaces, if any, is revoked once the new one is written.
func (s *EtcdStore) Put(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	previous, err := s.leaseOf(ctx, e.InstanceID)
	if err != nil {
		return err
	}

	ttl := time.Until(e.TerminateAfter) + leaseSlack
	lease, err := s.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("etcd lease grant failed: %w", err)
	}
	_, err = s.client.Put(ctx, s.getEtcdKey(e.InstanceID), string(payload), clientv3.WithLease(lease.ID))
	if err != nil {
		s.revoke(ctx, lease.ID)
		return fmt.Errorf("etcd put failed: %w", err)
	}
	s.revoke(ctx, previous)
	return nil
}

// Delete removes the entry together with its lease.
func (s *EtcdStore) Delete(ctx context.Context, instanceID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lease, err := s.leaseOf(ctx, instanceID)
	if err != nil {
		return err
	}
	if _, err := s.client.Delete(ctx, s.getEtcdKey(instanceID)); err != nil {
		return err
	}
	s.revoke(ctx, lease)
	return nil
}

// leaseOf returns the lease the entry is bound to, or clientv3.NoLease.
func (s *EtcdStore) leaseOf(ctx context.Context, instanceID string) (clientv3.LeaseID, error) {
	resp, err := s.client.Get(ctx, s.getEtcdKey(instanceID))
	if err != nil {
		return clientv3.NoLease, err
	}
	if len(resp.Kvs) == 0 {
		return clientv3.NoLease, nil
	}
	return clientv3.LeaseID(resp.Kvs[0].Lease), nil
}

// revoke is best effort: an unrevoked lease only expires later.
func (s *EtcdStore) revoke(ctx context.Context, lease clientv3.LeaseID) {
	if lease == clientv3.NoLease {
		return
	}
	_, _ = s.client.Revoke(ctx, lease)
}

func (s *EtcdStore) List(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.getEtcdKey(""), clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			return nil, fmt.Errorf("corrupted ledger entry %s: %w", kv.Key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
