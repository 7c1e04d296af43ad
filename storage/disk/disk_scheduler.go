package disk

import (
	"sync"
)

const numWorkers = 4

// DiskScheduler serializes page I/O onto a small pool of workers. Requests
// for the same page always land on the same worker, so per-page ordering is
// FIFO; requests for different pages may run in parallel.
type DiskScheduler struct {
	workers     [numWorkers]chan DiskReq
	diskManager *Manager
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

func NewScheduler(diskManager *Manager) *DiskScheduler {
	ds := &DiskScheduler{diskManager: diskManager}

	for i := range ds.workers {
		ds.workers[i] = make(chan DiskReq, 16)
		ds.wg.Add(1)
		go ds.pageWorker(ds.workers[i])
	}

	return ds
}

func NewRequest(pageId int64, data []byte, isWrite bool) DiskReq {
	return DiskReq{
		PageId: pageId,
		Data:   data,
		Write:  isWrite,
		RespCh: make(chan DiskResp, 1),
	}
}

func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.workers[uint64(req.PageId)%numWorkers] <- req
	return req.RespCh
}

func (ds *DiskScheduler) pageWorker(reqQueue chan DiskReq) {
	defer ds.wg.Done()

	for req := range reqQueue {
		if req.Write {
			if err := ds.diskManager.writePage(req.PageId, req.Data); err != nil {
				req.RespCh <- DiskResp{Err: err}
			} else {
				req.RespCh <- DiskResp{Success: true}
			}
		} else {
			if data, err := ds.diskManager.readPage(req.PageId); err != nil {
				req.RespCh <- DiskResp{Err: err}
			} else {
				req.RespCh <- DiskResp{Success: true, Data: data}
			}
		}
	}
}

// Shutdown stops the workers after draining queued requests.
func (ds *DiskScheduler) Shutdown() {
	ds.closeOnce.Do(func() {
		for i := range ds.workers {
			close(ds.workers[i])
		}
		ds.wg.Wait()
	})
}

type DiskReq struct {
	PageId int64
	Data   []byte
	Write  bool
	RespCh chan DiskResp
}

type DiskResp struct {
	Success bool
	Data    []byte
	Err     error
}
