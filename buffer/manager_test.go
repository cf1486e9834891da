package buffer

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"minidb/file"
	"minidb/log"
)

func setup(t *testing.T) (*file.Manager, *log.Manager) {
	t.Helper()

	fm, err := file.NewManager(t.TempDir(), 400)
	if err != nil {
		t.Fatalf("file.NewManager() failed: %v", err)
	}
	lm, err := log.NewManager(fm, "bufferlog")
	if err != nil {
		t.Fatalf("log.NewManager() failed: %v", err)
	}
	return fm, lm
}

func TestBuffer_Unassigned(t *testing.T) {
	fm, lm := setup(t)

	buf := NewBuffer(fm, lm)
	if _, ok := buf.Block(); ok {
		t.Errorf("a new buffer reports an assigned block")
	}
	if buf.IsPinned() || buf.ModifyingTx() != -1 || buf.LSN() != -1 {
		t.Errorf("new buffer: pinned=%v tx=%d lsn=%d, want false -1 -1", buf.IsPinned(), buf.ModifyingTx(), buf.LSN())
	}
}

func TestManager_Pin(t *testing.T) {
	testCases := []struct {
		name       string
		blocks     []int32
		wantHits   int64
		wantMisses int64
		wantAvail  int32
	}{
		{name: "distinct blocks", blocks: []int32{0, 1, 2}, wantMisses: 3, wantAvail: 0},
		{name: "same block twice", blocks: []int32{0, 0}, wantHits: 1, wantMisses: 1, wantAvail: 2},
		{name: "mixed", blocks: []int32{4, 5, 4}, wantHits: 1, wantMisses: 2, wantAvail: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fm, lm := setup(t)
			bm := NewManager(fm, lm, 3)

			seen := make(map[file.Block]*Buffer)
			for _, n := range tc.blocks {
				blk := file.NewBlock("pinfile", n)
				buf, err := bm.Pin(blk)
				if err != nil {
					t.Fatalf("Pin(%v) failed: %v", blk, err)
				}
				got, ok := buf.Block()
				if !ok || got != blk {
					t.Errorf("Block() = %v, %v; want %v, true", got, ok, blk)
				}
				if prev, ok := seen[blk]; ok && prev != buf {
					t.Errorf("%v pinned into two different buffers", blk)
				}
				seen[blk] = buf
			}

			stats := bm.Stats()
			if stats.Hits != tc.wantHits || stats.Misses != tc.wantMisses {
				t.Errorf("hits/misses = %d/%d, want %d/%d", stats.Hits, stats.Misses, tc.wantHits, tc.wantMisses)
			}
			if stats.Available != tc.wantAvail || stats.Size != 3 {
				t.Errorf("available/size = %d/%d, want %d/3", stats.Available, stats.Size, tc.wantAvail)
			}
		})
	}
}

func TestManager_PinWaitsForUnpin(t *testing.T) {
	fm, lm := setup(t)
	bm := NewManager(fm, lm, 1, WithMaxWait(2*time.Second))

	held, err := bm.Pin(file.NewBlock("waitfile", 0))
	if err != nil {
		t.Fatalf("Pin() failed: %v", err)
	}

	var g errgroup.Group
	g.Go(func() error {
		buf, err := bm.Pin(file.NewBlock("waitfile", 1))
		if err != nil {
			return err
		}
		bm.Unpin(buf)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	bm.Unpin(held)

	if err := g.Wait(); err != nil {
		t.Fatalf("waiting Pin() failed: %v", err)
	}
	if waits := bm.Stats().Waits; waits != 1 {
		t.Errorf("Waits = %d, want 1", waits)
	}
}

func TestManager_PinTimeout(t *testing.T) {
	fm, lm := setup(t)
	bm := NewManager(fm, lm, 2, WithMaxWait(100*time.Millisecond))

	for i := range int32(2) {
		if _, err := bm.Pin(file.NewBlock("fullfile", i)); err != nil {
			t.Fatalf("Pin() failed: %v", err)
		}
	}

	start := time.Now()
	_, err := bm.Pin(file.NewBlock("fullfile", 2))
	if !errors.Is(err, ErrBufferTimeout) {
		t.Fatalf("Pin() on a full pool: got %v, want ErrBufferTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Pin() gave up after %v, before the configured wait", elapsed)
	}
	if stats := bm.Stats(); stats.Timeouts != 1 || stats.Available != 0 {
		t.Errorf("timeouts/available = %d/%d, want 1/0", stats.Timeouts, stats.Available)
	}
}

func TestManager_FlushAll(t *testing.T) {
	fm, lm := setup(t)
	bm := NewManager(fm, lm, 3)

	const tx1, tx2 = 10, 20
	writes := []struct {
		block file.Block
		txNum int32
		value string
	}{
		{file.NewBlock("flushfile", 0), tx1, "tx1 first"},
		{file.NewBlock("flushfile", 1), tx2, "tx2"},
		{file.NewBlock("flushfile", 2), tx1, "tx1 second"},
	}

	bufs := make([]*Buffer, len(writes))
	for i, w := range writes {
		buf, err := bm.Pin(w.block)
		if err != nil {
			t.Fatalf("Pin(%v) failed: %v", w.block, err)
		}
		if err := buf.Contents().WriteStringAt(0, w.value); err != nil {
			t.Fatalf("WriteStringAt() failed: %v", err)
		}
		bm.SetModified(buf, w.txNum, int32(i+1))
		bufs[i] = buf
	}

	if err := bm.FlushAll(tx1); err != nil {
		t.Fatalf("FlushAll() failed: %v", err)
	}

	for i, w := range writes {
		wantDirty := w.txNum != tx1
		if dirty := bufs[i].ModifyingTx() >= 0; dirty != wantDirty {
			t.Errorf("%v dirty = %v after FlushAll(%d), want %v", w.block, dirty, tx1, wantDirty)
		}

		page := file.NewPage(fm.BlockSize())
		if err := fm.Read(w.block, page); err != nil {
			t.Fatalf("Read(%v) failed: %v", w.block, err)
		}
		got, err := page.ReadStringAt(0)
		if err != nil {
			t.Fatalf("ReadStringAt() failed: %v", err)
		}
		want := ""
		if !wantDirty {
			want = w.value
		}
		if got != want {
			t.Errorf("%v on disk = %q, want %q", w.block, got, want)
		}
	}
}

func TestManager_EvictionFlushesDirtyBuffer(t *testing.T) {
	fm, lm := setup(t)
	bm := NewManager(fm, lm, 1)

	blk := file.NewBlock("evictfile", 0)
	buf, err := bm.Pin(blk)
	if err != nil {
		t.Fatalf("Pin() failed: %v", err)
	}
	if err := buf.Contents().WriteInt32At(8, 4242); err != nil {
		t.Fatalf("WriteInt32At() failed: %v", err)
	}
	lsn, err := lm.Append([]byte("change"))
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	bm.SetModified(buf, 3, lsn)
	bm.Unpin(buf)

	other, err := bm.Pin(file.NewBlock("evictfile", 1))
	if err != nil {
		t.Fatalf("Pin() failed: %v", err)
	}
	if other != buf {
		t.Fatalf("a one-buffer pool handed out a second buffer")
	}
	if flushes := bm.Stats().Flushes; flushes != 1 {
		t.Errorf("Flushes = %d, want 1", flushes)
	}

	page := file.NewPage(fm.BlockSize())
	if err := fm.Read(blk, page); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if got, _ := page.ReadInt32At(8); got != 4242 {
		t.Errorf("evicted block on disk = %d, want 4242", got)
	}
	if lm.LastSavedLSN() < lsn {
		t.Errorf("page written before its log record (saved %d, lsn %d)", lm.LastSavedLSN(), lsn)
	}
}

func TestManager_ConcurrentSetModified(t *testing.T) {
	fm, lm := setup(t)
	bm := NewManager(fm, lm, 4)

	var g errgroup.Group
	for client := range int32(2) {
		g.Go(func() error {
			blk := file.NewBlock("racefile", client)
			for i := range int32(200) {
				buf, err := bm.Pin(blk)
				if err != nil {
					return err
				}
				bm.SetModified(buf, client, i)
				if err := bm.FlushAll(client); err != nil {
					return err
				}
				bm.Unpin(buf)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("client failed: %v", err)
	}
}
