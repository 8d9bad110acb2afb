package txn

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/logging"
)

// DefaultFileName is the conventional name of the saved transaction file.
const DefaultFileName = "transactions.encoded"

// marshalVersion is written at the head of every transaction block.
const marshalVersion int32 = 1

// Save writes every active transaction to path, replacing the file
// atomically.
//
// Layout, all integers big-endian:
//
//	int32 count
//	count × { int32 length, block[length] }
//
//	block: int32 marshalVersion, int64 msb, int64 lsb,
//	       uint16 nameLength, name (UTF-8), int64 commitTime,
//	       int32 stampCount, stampCount × (int64 msb, int64 lsb),
//	       int32 componentCount, componentCount × int32 nid
func (r *Registry) Save(path string) error {
	active := r.Active()

	var buf bytes.Buffer
	writeInt32(&buf, int32(len(active)))
	for _, t := range active {
		block, err := encodeTransaction(t)
		if err != nil {
			return err
		}
		writeInt32(&buf, int32(len(block)))
		buf.Write(block)
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return errors.Wrapf(err, "save transactions to %s", path)
	}
	r.logger.Info("transactions saved",
		zap.String(logging.FieldPath, path),
		zap.Int(logging.FieldCount, len(active)))
	return nil
}

// Restore registers the transactions saved at path and returns how many
// were added. A missing file restores nothing. Transactions already active
// are skipped.
func (r *Registry) Restore(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "restore transactions from %s", path)
	}

	rd := bytes.NewReader(data)
	count, err := readInt32(rd)
	if err != nil {
		return 0, errors.Wrap(err, "read transaction count")
	}
	if count < 0 {
		return 0, errors.Newf("negative transaction count %d", count)
	}

	restored := 0
	for i := int32(0); i < count; i++ {
		n, err := readInt32(rd)
		if err != nil {
			return restored, errors.Wrapf(err, "read length of transaction %d", i)
		}
		if n < 0 || int64(n) > int64(rd.Len()) {
			return restored, errors.Newf("transaction %d: bad block length %d", i, n)
		}
		block := make([]byte, n)
		if _, err := io.ReadFull(rd, block); err != nil {
			return restored, errors.Wrapf(err, "read transaction %d", i)
		}
		rec, err := decodeTransaction(block)
		if err != nil {
			return restored, errors.Wrapf(err, "decode transaction %d", i)
		}
		added, err := r.restore(rec.id, rec.name, rec.stamps, rec.components)
		if err != nil {
			return restored, err
		}
		if added {
			restored++
		}
	}

	r.logger.Info("transactions restored",
		zap.String(logging.FieldPath, path),
		zap.Int(logging.FieldCount, restored))
	return restored, nil
}

type record struct {
	id         uuid.UUID
	name       string
	commitTime int64
	stamps     []uuid.UUID
	components []int32
}

func encodeTransaction(t *Transaction) ([]byte, error) {
	if len(t.name) > math.MaxUint16 {
		return nil, errors.Validationf("transaction %s: name longer than %d bytes", t.id, math.MaxUint16)
	}
	stamps := t.StampUUIDs()
	components := t.Components().ToArray()

	var buf bytes.Buffer
	writeInt32(&buf, marshalVersion)
	writeUUID(&buf, t.id)
	binary.Write(&buf, binary.BigEndian, uint16(len(t.name)))
	buf.WriteString(t.name)
	binary.Write(&buf, binary.BigEndian, t.CommitTime())
	writeInt32(&buf, int32(len(stamps)))
	for _, id := range stamps {
		writeUUID(&buf, id)
	}
	writeInt32(&buf, int32(len(components)))
	for _, nid := range components {
		writeInt32(&buf, nid)
	}
	return buf.Bytes(), nil
}

func decodeTransaction(block []byte) (record, error) {
	rd := bufio.NewReader(bytes.NewReader(block))
	var rec record

	version, err := readInt32(rd)
	if err != nil {
		return rec, err
	}
	if version != marshalVersion {
		return rec, errors.Newf("unsupported marshal version %d", version)
	}
	if rec.id, err = readUUID(rd); err != nil {
		return rec, err
	}

	var nameLen uint16
	if err := binary.Read(rd, binary.BigEndian, &nameLen); err != nil {
		return rec, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(rd, name); err != nil {
		return rec, err
	}
	rec.name = string(name)

	if err := binary.Read(rd, binary.BigEndian, &rec.commitTime); err != nil {
		return rec, err
	}
	if rec.commitTime != entity.TimeUncommitted {
		return rec, errors.Newf("transaction %s is not pending", rec.id)
	}

	n, err := readCount(rd, len(block)/16)
	if err != nil {
		return rec, err
	}
	rec.stamps = make([]uuid.UUID, n)
	for i := range rec.stamps {
		if rec.stamps[i], err = readUUID(rd); err != nil {
			return rec, err
		}
	}

	if n, err = readCount(rd, len(block)/4); err != nil {
		return rec, err
	}
	rec.components = make([]int32, n)
	for i := range rec.components {
		if rec.components[i], err = readInt32(rd); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func writeInt32(buf *bytes.Buffer, v int32) {
	buf.Write(binary.BigEndian.AppendUint32(nil, uint32(v)))
}

// writeUUID writes the most then least significant 64 bits.
func writeUUID(buf *bytes.Buffer, id uuid.UUID) {
	buf.Write(id[:])
}

func readInt32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readCount(r io.Reader, limit int) (int, error) {
	n, err := readInt32(r)
	if err != nil {
		return 0, err
	}
	if n < 0 || int(n) > limit {
		return 0, errors.Newf("bad element count %d", n)
	}
	return int(n), nil
}

func readUUID(r io.Reader) (uuid.UUID, error) {
	var id uuid.UUID
	_, err := io.ReadFull(r, id[:])
	return id, err
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
