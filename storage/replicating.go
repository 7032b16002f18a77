package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/sourcegraph/conc/pool"

	"xdao.co/ipfshttp/cidutil"
)

// NamedCAS associates a CAS with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedCAS struct {
	Name string
	CAS  CAS
}

// WritePolicy selects which backends receive writes.
type WritePolicy string

const (
	// WriteAll writes to every backend and requires matching CIDs.
	WriteAll WritePolicy = "all"
	// WriteFirst writes only to the first backend.
	WriteFirst WritePolicy = "first"
)

// ReplicatingCAS fans writes out to its backends and reads from them in
// order.
//
// Under WriteAll (the zero Policy) writes go to all backends concurrently
// and every returned CID must match, otherwise ErrCIDMismatch is returned.
// Use PutAll when you need the per-backend CID mapping.
type ReplicatingCAS struct {
	Backends []NamedCAS
	Policy   WritePolicy
}

var _ BlockStore = (*ReplicatingCAS)(nil)

func (r ReplicatingCAS) writers() ([]NamedCAS, error) {
	if len(r.Backends) == 0 {
		return nil, ErrNoBackends
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			return nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
	}
	switch r.Policy {
	case "", WriteAll:
		return r.Backends, nil
	case WriteFirst:
		return r.Backends[:1], nil
	default:
		return nil, fmt.Errorf("storage: unknown write policy %q", r.Policy)
	}
}

// PutAll writes the same bytes to the writing backends.
//
// It returns:
// - the canonical CID (computed from bytes)
// - a map of backend name -> returned CID
//
// If any backend returns a different CID, ErrCIDMismatch is returned.
func (r ReplicatingCAS) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	writers, err := r.writers()
	if err != nil {
		return cid.Undef, nil, err
	}

	got := make([]cid.Cid, len(writers))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, b := range writers {
		p.Go(func(ctx context.Context) error {
			id, err := b.CAS.Put(ctx, data)
			if err != nil {
				return fmt.Errorf("storage: backend %q: %w", b.Name, err)
			}
			got[i] = id
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return cid.Undef, nil, err
	}

	out := make(map[string]cid.Cid, len(writers))
	mismatch := false
	for i, b := range writers {
		out[b.Name] = got[i]
		mismatch = mismatch || !got[i].Equals(want)
	}
	if mismatch {
		return cid.Undef, out, ErrCIDMismatch
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

// PutBlock stores a block under id on the writing backends. Every writer
// must be a BlockStore.
func (r ReplicatingCAS) PutBlock(ctx context.Context, id cid.Cid, data []byte) error {
	if err := cidutil.Verify(id, data); err != nil {
		return ErrCIDMismatch
	}
	writers, err := r.writers()
	if err != nil {
		return err
	}
	stores := make([]BlockStore, len(writers))
	for i, b := range writers {
		bs, ok := b.CAS.(BlockStore)
		if !ok {
			return fmt.Errorf("storage: backend %q cannot store blocks by identifier", b.Name)
		}
		stores[i] = bs
	}
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, bs := range stores {
		p.Go(func(ctx context.Context) error {
			if err := bs.PutBlock(ctx, id, data); err != nil {
				return fmt.Errorf("storage: backend %q: %w", writers[i].Name, err)
			}
			return nil
		})
	}
	return p.Wait()
}

func (r ReplicatingCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		ok, err := b.CAS.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
