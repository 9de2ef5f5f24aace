package crosschain

import (
	"errors"
	"fmt"
	"time"

	"github.com/AvaProtocol/aa-bridge/model"
	"github.com/AvaProtocol/aa-bridge/storage"
	"github.com/AvaProtocol/aa-bridge/storage/schema"
)

var ErrTransferNotFound = errors.New("transfer not found")

// Journal keeps every transfer attempt in badger so past runs can be inspected with the history command.
type Journal struct {
	db  storage.Storage
	now func() time.Time
}

func NewJournal(db storage.Storage) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Save writes r and indexes it by user operation hash when one is known.
func (j *Journal) Save(r *model.TransferRecord) error {
	r.UpdatedAt = j.now().UnixMilli()

	data, err := r.ToJSON()
	if err != nil {
		return fmt.Errorf("cannot encode transfer record: %w", err)
	}

	updates := map[string][]byte{
		string(schema.TransferKey(r.ID)): data,
	}
	if r.UserOpHash != "" {
		updates[string(schema.UserOpKey(r.UserOpHash))] = []byte(r.ID)
	}
	if err := j.db.BatchWrite(updates); err != nil {
		return fmt.Errorf("cannot write transfer record: %w", err)
	}
	return nil
}

// Finish moves r to a terminal status and persists it. runErr, when set, is kept as the record error.
func (j *Journal) Finish(r *model.TransferRecord, status model.TransferStatus, runErr error) error {
	r.Status = status
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if err := j.Save(r); err != nil {
		return err
	}
	if _, err := j.db.IncCounter(schema.TransferCounterKey(string(status))); err != nil {
		return fmt.Errorf("cannot update transfer counter: %w", err)
	}
	return nil
}

func (j *Journal) Get(id string) (*model.TransferRecord, error) {
	data, err := j.db.GetKey(schema.TransferKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	r := &model.TransferRecord{}
	if err := r.FromStorageData(data); err != nil {
		return nil, fmt.Errorf("transfer record %s is corrupted: %w", id, err)
	}
	return r, nil
}

func (j *Journal) FindByUserOp(userOpHash string) (*model.TransferRecord, error) {
	id, err := j.db.GetKey(schema.UserOpKey(userOpHash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: userop %s", ErrTransferNotFound, userOpHash)
	}
	if err != nil {
		return nil, err
	}
	return j.Get(string(id))
}

// List returns at most limit records, newest first. limit <= 0 returns everything.
func (j *Journal) List(limit int) ([]*model.TransferRecord, error) {
	items, err := j.db.GetByPrefixReverse([]byte(schema.TransferPrefix), limit)
	if err != nil {
		return nil, err
	}

	records := make([]*model.TransferRecord, 0, len(items))
	for _, item := range items {
		r := &model.TransferRecord{}
		if err := r.FromStorageData(item.Value); err != nil {
			return nil, fmt.Errorf("transfer record %s is corrupted: %w", item.Key, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Count returns how many records finished with status.
func (j *Journal) Count(status model.TransferStatus) (uint64, error) {
	return j.db.GetCounter(schema.TransferCounterKey(string(status)), 0)
}

// Total counts every record in the journal, finished or not.
func (j *Journal) Total() (int64, error) {
	return j.db.CountKeysByPrefix([]byte(schema.TransferPrefix))
}
