package index

import (
	"fmt"
	"os"

	"github.com/jobala/basalt/buffer"
	"github.com/jobala/basalt/storage/disk"
	"github.com/jobala/basalt/util"
)

// Metadata describes an on-disk index; it is written once at creation and
// validated on reopen.
type Metadata struct {
	Name            string
	KeySize         int
	ValueSize       int
	LeafMaxSize     int
	InternalMaxSize int
}

type IndexOption func(*indexOptions)

type indexOptions struct {
	poolSize  int
	replacerK int
	treeOpts  []TreeOption
}

func WithPoolSize(size int) IndexOption {
	return func(o *indexOptions) {
		o.poolSize = size
	}
}

func WithReplacerK(k int) IndexOption {
	return func(o *indexOptions) {
		o.replacerK = k
	}
}

func WithTreeOptions(opts ...TreeOption) IndexOption {
	return func(o *indexOptions) {
		o.treeOpts = append(o.treeOpts, opts...)
	}
}

// BplusTreeIndex is the durable single threaded form of the tree: it owns
// the db file and its bufferpool, runs without page latches, and survives
// reopens. The header page keeps the root, the log sidecar keeps the page
// allocator's counter and the meta sidecar keeps the tree geometry.
type BplusTreeIndex[K, V any] struct {
	fileName      string
	diskManager   *disk.Manager
	diskScheduler *disk.DiskScheduler
	bpm           *buffer.BufferpoolManager
	*BplusTree[K, V]
}

func OpenBplusTreeIndex[K, V any](
	fileName string,
	keys Codec[K],
	values Codec[V],
	cmp Comparator[K],
	opts ...IndexOption,
) (*BplusTreeIndex[K, V], error) {
	options := indexOptions{poolSize: 64, replacerK: 2}
	for _, opt := range opts {
		opt(&options)
	}

	diskManager, err := disk.NewManagerWithLog(fileName)
	if err != nil {
		return nil, err
	}
	diskScheduler := disk.NewScheduler(diskManager)
	bpm := buffer.NewBufferpoolManager(
		options.poolSize,
		buffer.NewLrukReplacer(options.replacerK),
		diskScheduler,
		buffer.WithoutLatches(),
	)

	metadata, err := loadMetadata(fileName)
	if err != nil {
		diskScheduler.Shutdown()
		_ = diskManager.Close()
		return nil, err
	}

	treeOpts := options.treeOpts
	if metadata != nil {
		if metadata.KeySize != keys.Width || metadata.ValueSize != values.Width {
			diskScheduler.Shutdown()
			_ = diskManager.Close()
			return nil, fmt.Errorf(
				"index %s expects %d byte keys and %d byte values",
				fileName, metadata.KeySize, metadata.ValueSize,
			)
		}

		bpm.SetNextPageId(diskManager.ReadLog())
		treeOpts = append(treeOpts,
			WithLeafMaxSize(metadata.LeafMaxSize),
			WithInternalMaxSize(metadata.InternalMaxSize),
			InheritFile(),
		)
	}

	tree, err := NewBplusTree(fileName, bpm, keys, values, cmp, treeOpts...)
	if err != nil {
		diskScheduler.Shutdown()
		_ = diskManager.Close()
		return nil, err
	}

	index := &BplusTreeIndex[K, V]{
		fileName:      fileName,
		diskManager:   diskManager,
		diskScheduler: diskScheduler,
		bpm:           bpm,
		BplusTree:     tree,
	}

	if metadata == nil {
		if err := index.saveMetadata(); err != nil {
			diskScheduler.Shutdown()
			_ = diskManager.Close()
			return nil, err
		}
	}

	return index, nil
}

// Close flushes every page and records the allocator counter so a reopen
// resumes where this session left off.
func (i *BplusTreeIndex[K, V]) Close() error {
	if err := i.bpm.FlushAllPages(); err != nil {
		return err
	}
	if err := i.diskManager.WriteLog(i.bpm.GetNextPageId()); err != nil {
		return err
	}

	i.diskScheduler.Shutdown()
	return i.diskManager.Close()
}

func (i *BplusTreeIndex[K, V]) saveMetadata() error {
	metadata := Metadata{
		Name:            i.indexName,
		KeySize:         i.keys.Width,
		ValueSize:       i.values.Width,
		LeafMaxSize:     i.leafMaxSize,
		InternalMaxSize: i.internalMaxSize,
	}

	data, err := util.ToByteSlice(metadata)
	if err != nil {
		return fmt.Errorf("error encoding index metadata: %w", err)
	}

	return os.WriteFile(i.fileName+".meta", data, 0644)
}

func loadMetadata(fileName string) (*Metadata, error) {
	data, err := os.ReadFile(fileName + ".meta")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	metadata, err := util.ToStruct[Metadata](data)
	if err != nil {
		return nil, fmt.Errorf("error decoding index metadata: %w", err)
	}

	return &metadata, nil
}
