package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"time"

	"github.com/go-errors/errors"
	"github.com/multiformats/go-multihash"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/internal/cbor"
	"github.com/privacybydesign/zkgate/signed"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type (
	// Store is a local Authority backed by goleveldb. Every state change is appended as an
	// ECDSA-signed Record whose event links to its predecessor by hash; the TxRef of a change is
	// the multihash of its signed record. State changes run in exclusive leveldb transactions,
	// so concurrent invalidations of one key succeed exactly once.
	Store struct {
		db     *leveldb.DB
		sk     *ecdsa.PrivateKey
		params *zkgate.DomainParameters
		now    func() time.Time
	}

	// KeyState is the state of a public key in the store.
	KeyState uint8

	// EventKind distinguishes the state changes in the audit trail.
	EventKind uint8

	// Event is a state change as signed into a Record.
	Event struct {
		Seq            uint64
		Kind           EventKind
		Key            []byte
		NewKey         []byte `cbor:",omitempty"`
		InvalidationID string `cbor:",omitempty"`
		Proof          []byte `cbor:",omitempty"`
		ParentHash     []byte
		Time           int64
	}

	// Record is an entry of the audit trail.
	Record struct {
		Seq     uint64
		Message signed.Message
	}

	keyRecord struct {
		State KeyState
	}

	headRecord struct {
		Seq  uint64
		Hash []byte
	}
)

const (
	KeyUnknown KeyState = iota
	KeyValid
	KeyInvalidated
	KeyReplaced
)

const (
	EventRegister EventKind = iota + 1
	EventInvalidate
	EventUpdate
)

var (
	keyPrefix    = []byte("k/")
	recordPrefix = []byte("r/")
	headKey      = []byte("m/head")

	ErrUnknownKey = errors.New("ledger: key not registered")
)

func (s KeyState) String() string {
	switch s {
	case KeyValid:
		return "valid"
	case KeyInvalidated:
		return "invalidated"
	case KeyReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Open opens or creates the store at path. Records are signed with sk. If params is not nil,
// UpdateKey verifies ownership proofs against them.
func Open(path string, sk *ecdsa.PrivateKey, params *zkgate.DomainParameters) (*Store, error) {
	if sk == nil {
		return nil, errors.New("ledger: no signing key")
	}
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.WrapPrefix(err, "ledger: failed to open store", 0)
	}
	Logger.Debugf("opened ledger store at %s", path)
	return &Store{db: db, sk: sk, params: params, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PublicKey returns the key that verifies the records of this store.
func (s *Store) PublicKey() *ecdsa.PublicKey {
	return &s.sk.PublicKey
}

func (s *Store) IsKeyValid(ctx context.Context, y *big.Int) (bool, error) {
	state, err := s.KeyStatus(ctx, y)
	return state == KeyValid, err
}

// KeyStatus returns the current state of y.
func (s *Store) KeyStatus(ctx context.Context, y *big.Int) (KeyState, error) {
	if err := ctx.Err(); err != nil {
		return KeyUnknown, errors.WrapPrefix(ErrUnavailable, err.Error(), 0)
	}
	bts, err := s.db.Get(keyID(y), nil)
	if err == leveldb.ErrNotFound {
		return KeyUnknown, nil
	}
	if err != nil {
		return KeyUnknown, unavailable(err)
	}
	var kr keyRecord
	if err = cbor.Unmarshal(bts, &kr); err != nil {
		return KeyUnknown, err
	}
	return kr.State, nil
}

func (s *Store) RegisterKey(ctx context.Context, y *big.Int) (TxRef, error) {
	return s.transact(ctx, func(tx *leveldb.Transaction) (*Event, error) {
		state, err := getState(tx, y)
		if err != nil {
			return nil, err
		}
		if state != KeyUnknown {
			return nil, ErrKeyExists
		}
		return &Event{Kind: EventRegister, Key: y.Bytes()}, setState(tx, y, KeyValid)
	})
}

func (s *Store) InvalidateKey(ctx context.Context, y *big.Int) (TxRef, error) {
	return s.transact(ctx, func(tx *leveldb.Transaction) (*Event, error) {
		state, err := getState(tx, y)
		if err != nil {
			return nil, err
		}
		switch state {
		case KeyUnknown:
			return nil, ErrUnknownKey
		case KeyValid:
		default:
			return nil, ErrAlreadyInvalid
		}
		return &Event{Kind: EventInvalidate, Key: y.Bytes()}, setState(tx, y, KeyInvalidated)
	})
}

// UpdateKey replaces oldY, which may already have been invalidated by an entry, by newY.
// Each key can be replaced once.
func (s *Store) UpdateKey(ctx context.Context, oldY, newY *big.Int, invalidationID string, proof *zkgate.OwnershipProof) (TxRef, error) {
	if s.params != nil && !zkgate.VerifyOwnership(s.params, oldY, newY, invalidationID, proof) {
		return "", ErrAuth
	}
	var proofText []byte
	if proof != nil {
		var err error
		if proofText, err = proof.MarshalText(); err != nil {
			return "", ErrAuth
		}
	}
	return s.transact(ctx, func(tx *leveldb.Transaction) (*Event, error) {
		oldState, err := getState(tx, oldY)
		if err != nil {
			return nil, err
		}
		switch oldState {
		case KeyUnknown:
			return nil, ErrUnknownKey
		case KeyReplaced:
			return nil, ErrAlreadyInvalid
		}
		newState, err := getState(tx, newY)
		if err != nil {
			return nil, err
		}
		if newState != KeyUnknown {
			return nil, ErrKeyExists
		}
		if err = setState(tx, oldY, KeyReplaced); err != nil {
			return nil, err
		}
		if err = setState(tx, newY, KeyValid); err != nil {
			return nil, err
		}
		return &Event{
			Kind:           EventUpdate,
			Key:            oldY.Bytes(),
			NewKey:         newY.Bytes(),
			InvalidationID: invalidationID,
			Proof:          proofText,
		}, nil
	})
}

// transact runs f in an exclusive transaction, appends the event it returns to the audit trail
// and commits.
func (s *Store) transact(ctx context.Context, f func(tx *leveldb.Transaction) (*Event, error)) (TxRef, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WrapPrefix(ErrUnavailable, err.Error(), 0)
	}
	tx, err := s.db.OpenTransaction()
	if err != nil {
		return "", unavailable(err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Discard()
		}
	}()

	event, err := f(tx)
	if err != nil {
		return "", err
	}
	ref, err := s.appendEvent(tx, event)
	if err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", unavailable(err)
	}
	committed = true
	Logger.WithField("tx", ref).Debugf("ledger event %d (kind %d) committed", event.Seq, event.Kind)
	return ref, nil
}

func (s *Store) appendEvent(tx *leveldb.Transaction, event *Event) (TxRef, error) {
	head, err := getHead(tx)
	if err != nil {
		return "", err
	}
	event.Seq = head.Seq + 1
	event.ParentHash = head.Hash
	event.Time = s.now().UnixNano()

	msg, err := signed.MarshalSign(s.sk, event)
	if err != nil {
		return "", err
	}
	hash, err := multihash.Sum(msg, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	rec, err := cbor.Marshal(&Record{Seq: event.Seq, Message: msg})
	if err != nil {
		return "", err
	}
	if err = tx.Put(recordKey(event.Seq), rec, nil); err != nil {
		return "", unavailable(err)
	}
	headBts, err := cbor.Marshal(&headRecord{Seq: event.Seq, Hash: hash})
	if err != nil {
		return "", err
	}
	if err = tx.Put(headKey, headBts, nil); err != nil {
		return "", unavailable(err)
	}
	return TxRef(hash.B58String()), nil
}

// Records returns the audit trail starting at sequence number from (the first record has
// sequence number 1).
func (s *Store) Records(from uint64) ([]Record, error) {
	iter := s.db.NewIterator(&util.Range{Start: recordKey(from), Limit: util.BytesPrefix(recordPrefix).Limit}, nil)
	defer iter.Release()

	var records []Record
	for iter.Next() {
		var rec Record
		if err := cbor.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

// VerifyRecord checks the signature of rec against pk and returns its event.
func VerifyRecord(pk *ecdsa.PublicKey, rec Record) (*Event, error) {
	event := &Event{}
	if err := signed.UnmarshalVerify(pk, rec.Message, event); err != nil {
		return nil, err
	}
	if event.Seq != rec.Seq {
		return nil, errors.New("ledger: record sequence mismatch")
	}
	return event, nil
}

// VerifyChain verifies the signatures of records, which must be consecutive and start at the
// first record, and checks that each event links to its predecessor.
func VerifyChain(pk *ecdsa.PublicKey, records []Record) error {
	parent, err := genesisHash()
	if err != nil {
		return err
	}
	for i, rec := range records {
		event, err := VerifyRecord(pk, rec)
		if err != nil {
			return err
		}
		if event.Seq != uint64(i+1) {
			return errors.Errorf("ledger: expected record %d, got %d", i+1, event.Seq)
		}
		if string(event.ParentHash) != string(parent) {
			return errors.Errorf("ledger: record %d does not link to its predecessor", event.Seq)
		}
		if parent, err = multihash.Sum(rec.Message, multihash.SHA2_256, -1); err != nil {
			return err
		}
	}
	return nil
}

// RecordRef returns the TxRef of a record.
func RecordRef(rec Record) (TxRef, error) {
	hash, err := multihash.Sum(rec.Message, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return TxRef(hash.B58String()), nil
}

// genesisHash is the parent hash of the first record: a SHA2-256 multihash of zeroes.
func genesisHash() (multihash.Multihash, error) {
	return multihash.Encode(make([]byte, 32), multihash.SHA2_256)
}

func getHead(tx *leveldb.Transaction) (*headRecord, error) {
	bts, err := tx.Get(headKey, nil)
	if err == leveldb.ErrNotFound {
		hash, err := genesisHash()
		if err != nil {
			return nil, err
		}
		return &headRecord{Hash: hash}, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	head := &headRecord{}
	return head, cbor.Unmarshal(bts, head)
}

func getState(tx *leveldb.Transaction, y *big.Int) (KeyState, error) {
	bts, err := tx.Get(keyID(y), nil)
	if err == leveldb.ErrNotFound {
		return KeyUnknown, nil
	}
	if err != nil {
		return KeyUnknown, unavailable(err)
	}
	var kr keyRecord
	if err = cbor.Unmarshal(bts, &kr); err != nil {
		return KeyUnknown, err
	}
	return kr.State, nil
}

func setState(tx *leveldb.Transaction, y *big.Int, state KeyState) error {
	bts, err := cbor.Marshal(&keyRecord{State: state})
	if err != nil {
		return err
	}
	if err = tx.Put(keyID(y), bts, nil); err != nil {
		return unavailable(err)
	}
	return nil
}

func keyID(y *big.Int) []byte {
	return append(append([]byte{}, keyPrefix...), y.Bytes()...)
}

func recordKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)
	return key
}

func unavailable(err error) error {
	return errors.WrapPrefix(ErrUnavailable, err.Error(), 0)
}
