package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"govetachun/snkv/pager"
)

// CF is a handle to one column family: a named, independent ordered
// byte-string map sharing the store's single pager engine. It is a thin
// reference — the actual state is the table id it carries and the store it
// borrows from.
type CF struct {
	store   *Store
	name    string
	tableID uint32
}

// Name returns the column family's name.
func (cf *CF) Name() string { return cf.name }

const (
	maxCFNameLen  = 255
	maxUserCFs    = 64
	reservedPfx   = "__"
	defaultCFName = "default"
)

func ttlKeyIndexName(cf string) string { return "__snkv_ttl_k__" + cf }
func ttlExpIndexName(cf string) string { return "__snkv_ttl_e__" + cf }

// cfRegistry persists name -> table id in the master CF (table 0) and keeps
// an in-memory mirror of it for fast lookups.
type cfRegistry struct {
	mu     sync.Mutex
	store  *Store
	def    *CF
	byName map[string]uint32 // cached mirror of the master CF, refreshed on write
}

func newCFRegistry(s *Store) *cfRegistry {
	return &cfRegistry{store: s, byName: map[string]uint32{}}
}

// cfRecord is the master CF's value shape: little-endian table id plus
// reserved bytes for future metadata.
const cfRecordSize = 4 + 4

func encodeCFRecord(tableID uint32) []byte {
	buf := make([]byte, cfRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], tableID)
	return buf
}

func decodeCFRecord(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}

// bootstrap loads the master CF's existing entries, creating the default CF
// if the database was just created (master CF empty).
func (r *cfRegistry) bootstrap() error {
	loaded, err := r.loadAll()
	if err != nil {
		return err
	}
	r.byName = loaded
	if id, ok := r.byName[defaultCFName]; ok {
		r.def = &CF{store: r.store, name: defaultCFName, tableID: id}
		return nil
	}
	if r.store.cfg.ReadOnly {
		return newErr(StatusReadOnly, "database has no default CF and is read-only", nil)
	}
	cf, err := r.create(defaultCFName)
	if err != nil {
		return err
	}
	r.def = cf
	return nil
}

func (r *cfRegistry) loadAll() (map[string]uint32, error) {
	out := map[string]uint32{}
	err := r.store.doRead(func(rd reader) error {
		cur := rd.cursor(pager.MasterTableID)
		defer cur.Close()
		cur.SeekFirst()
		for !cur.Eof() {
			name := string(cur.Key())
			out[name] = decodeCFRecord(cur.Value())
			cur.Next()
		}
		return nil
	})
	return out, err
}

func validateCFName(name string) error {
	if len(name) == 0 {
		return newErr(StatusInvalidArgument, "cf name must not be empty", nil)
	}
	if len(name) > maxCFNameLen {
		return newErr(StatusInvalidArgument, "cf name exceeds 255 bytes", nil)
	}
	if strings.HasPrefix(name, reservedPfx) {
		return newErr(StatusInvalidArgument, "cf name must not begin with __", nil)
	}
	return nil
}

// Default returns the handle for the always-present default CF.
func (s *Store) Default() *CF {
	s.cfs.mu.Lock()
	defer s.cfs.mu.Unlock()
	return s.cfs.def
}

// CreateCF creates a new, empty column family.
func (s *Store) CreateCF(name string) (*CF, error) {
	return s.cfs.create(name)
}

func (r *cfRegistry) create(name string) (*CF, error) {
	if err := validateCFName(name); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if _, exists := r.byName[name]; exists {
		r.mu.Unlock()
		return nil, newErr(StatusError, fmt.Sprintf("column family %q already exists", name), nil)
	}
	userCount := 0
	for n := range r.byName {
		if n != defaultCFName && !strings.HasPrefix(n, reservedPfx) {
			userCount++
		}
	}
	r.mu.Unlock()
	if name != defaultCFName && userCount >= maxUserCFs {
		return nil, newErr(StatusInvalidArgument, "maximum number of column families reached", nil)
	}

	var tableID uint32
	err := r.store.doWrite(func(ctx *writeCtx) error {
		id, err := ctx.wtx.CreateTable()
		if err != nil {
			return translatePagerErr(err)
		}
		master := ctx.wtx.OpenCursor(pager.MasterTableID)
		if err := master.Insert([]byte(name), encodeCFRecord(id)); err != nil {
			return translatePagerErr(err)
		}
		tableID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.byName[name] = tableID
	r.mu.Unlock()
	return &CF{store: r.store, name: name, tableID: tableID}, nil
}

// OpenCF opens an existing column family by name.
func (s *Store) OpenCF(name string) (*CF, error) {
	return s.cfs.open(name)
}

func (r *cfRegistry) open(name string) (*CF, error) {
	r.mu.Lock()
	id, ok := r.byName[name]
	r.mu.Unlock()
	if !ok {
		return nil, newErr(StatusNotFound, fmt.Sprintf("column family %q not found", name), nil)
	}
	return &CF{store: r.store, name: name, tableID: id}, nil
}

// resolve looks up name, defaulting to the default CF for "" — the shared
// entry point every store-level (as opposed to CF-level) KV call uses.
func (r *cfRegistry) resolve(name string) (*CF, error) {
	if name == "" {
		r.mu.Lock()
		def := r.def
		r.mu.Unlock()
		return def, nil
	}
	return r.open(name)
}

// DropCF removes name along with its TTL index CFs, atomically.
func (s *Store) DropCF(name string) error {
	return s.cfs.drop(name)
}

func (r *cfRegistry) drop(name string) error {
	if name == defaultCFName {
		return newErr(StatusError, "cannot drop the default column family", nil)
	}
	r.mu.Lock()
	id, ok := r.byName[name]
	r.mu.Unlock()
	if !ok {
		return newErr(StatusNotFound, fmt.Sprintf("column family %q not found", name), nil)
	}

	ttlK := ttlKeyIndexName(name)
	ttlE := ttlExpIndexName(name)
	err := r.store.doWrite(func(ctx *writeCtx) error {
		if err := ctx.wtx.DropTable(id); err != nil {
			return translatePagerErr(err)
		}
		master := ctx.wtx.OpenCursor(pager.MasterTableID)
		if _, err := master.Delete([]byte(name)); err != nil {
			return translatePagerErr(err)
		}
		for _, aux := range [2]string{ttlK, ttlE} {
			r.mu.Lock()
			auxID, exists := r.byName[aux]
			r.mu.Unlock()
			if !exists {
				continue
			}
			if err := ctx.wtx.DropTable(auxID); err != nil {
				return translatePagerErr(err)
			}
			if _, err := master.Delete([]byte(aux)); err != nil {
				return translatePagerErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.byName, name)
	delete(r.byName, ttlK)
	delete(r.byName, ttlE)
	r.mu.Unlock()
	return nil
}

// ListCFs returns every user-visible CF name (never one with a "__" reserved
// prefix), in ascending lexicographic order as stored in the master CF —
// the decided Open Question: see DESIGN.md.
func (s *Store) ListCFs() ([]string, error) {
	var names []string
	err := s.doRead(func(rd reader) error {
		cur := rd.cursor(pager.MasterTableID)
		defer cur.Close()
		cur.SeekFirst()
		for !cur.Eof() {
			key := cur.Key()
			if !bytes.HasPrefix(key, []byte(reservedPfx)) {
				names = append(names, string(key))
			}
			cur.Next()
		}
		return nil
	})
	return names, err
}

// ensureTTLIndexes lazily creates the TTL key-index and expiry-index CFs for
// a user CF, returning their table ids. Must be called from within an
// already-open write transaction (ctx.wtx), mirroring cfRegistry.create but
// without its own nested transaction.
func (r *cfRegistry) ensureTTLIndexes(ctx *writeCtx, cfName string) (keyIdx, expIdx uint32, err error) {
	kName, eName := ttlKeyIndexName(cfName), ttlExpIndexName(cfName)
	r.mu.Lock()
	kID, kOK := r.byName[kName]
	eID, eOK := r.byName[eName]
	r.mu.Unlock()

	master := ctx.wtx.OpenCursor(pager.MasterTableID)
	if !kOK {
		kID, err = ctx.wtx.CreateTable()
		if err != nil {
			return 0, 0, translatePagerErr(err)
		}
		if err := master.Insert([]byte(kName), encodeCFRecord(kID)); err != nil {
			return 0, 0, translatePagerErr(err)
		}
		r.mu.Lock()
		r.byName[kName] = kID
		r.mu.Unlock()
	}
	if !eOK {
		eID, err = ctx.wtx.CreateTable()
		if err != nil {
			return 0, 0, translatePagerErr(err)
		}
		if err := master.Insert([]byte(eName), encodeCFRecord(eID)); err != nil {
			return 0, 0, translatePagerErr(err)
		}
		r.mu.Lock()
		r.byName[eName] = eID
		r.mu.Unlock()
	}
	return kID, eID, nil
}

// ttlIndexesIfPresent returns the existing TTL index table ids for cfName
// without creating them, and whether both are present.
func (r *cfRegistry) ttlIndexesIfPresent(cfName string) (keyIdx, expIdx uint32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, kOK := r.byName[ttlKeyIndexName(cfName)]
	e, eOK := r.byName[ttlExpIndexName(cfName)]
	return k, e, kOK && eOK
}
