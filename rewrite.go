package dumbfs

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/semaphore"

	"github.com/dumbfs/dumbfs/flash"
)

// Scratch is the staging area the buffered-rewrite engine uses to emulate
// an in-place write on erase-only flash (spec §4.2). It exposes the four
// primitives named by the spec: erase, stageCopy (bring persistent bytes
// into scratch), stageWrite (place new bytes into scratch) and publish
// (erase the target block, then land the scratch image on it).
//
// Both implementations below share this interface and the same
// BufferedWrite algorithm; they differ only in where staging happens,
// exactly as spec §4.2 describes the two scratch modes.
type Scratch interface {
	erase(dev flash.Device) error
	stageCopy(dev flash.Device, dstOff int, srcOff int64, length int) error
	stageWrite(dstOff int, buf []byte) error
	publish(dev flash.Device, targetBlock uint32) error
}

// ramScratch is the RAM-scratch mode of spec §4.2: the staging area is a
// plain RAM buffer one erase-block long. The buffer's memory address is
// not aligned to a page boundary. Staging is a memory copy; publish is
// erase + one aligned write.
type ramScratch struct {
	buf []byte
}

// NewRAMScratch allocates a RAM-backed Scratch for the given erase-block
// size. blockSize must already be validated as a multiple of the page
// size (config.Config.Validate does this).
func NewRAMScratch(blockSize int) Scratch {
	return &ramScratch{buf: make([]byte, blockSize)}
}

func (s *ramScratch) erase(dev flash.Device) error {
	for i := range s.buf {
		s.buf[i] = 0xFF
	}
	return nil
}

func (s *ramScratch) stageCopy(dev flash.Device, dstOff int, srcOff int64, length int) error {
	return dev.ReadAligned(srcOff, s.buf[dstOff:dstOff+length])
}

func (s *ramScratch) stageWrite(dstOff int, buf []byte) error {
	copy(s.buf[dstOff:], buf)
	return nil
}

func (s *ramScratch) publish(dev flash.Device, targetBlock uint32) error {
	if err := dev.Erase(targetBlock); err != nil {
		return err
	}
	off := int64(targetBlock) * int64(len(s.buf))
	return dev.WriteAligned(off, s.buf)
}

// flashScratch is the flash-scratch mode of spec §4.2: the staging area
// is an ordinary reserved flash block (spec invariant I5: never holds
// persistent file data). Because the underlying flash facade only offers
// a page-aligned WriteAligned, byte-granular stages are done via a
// read-modify-write through a page-sized bounce buffer (spec §4.2
// "Edge-case policies").
type flashScratch struct {
	block     uint32
	blockSize int
	dev       flash.Device
}

// NewFlashScratch reserves scratchBlock (conventionally the device's last
// block, per spec §6's "on-flash format" layout) as the staging area.
func NewFlashScratch(scratchBlock uint32, blockSize int) Scratch {
	return &flashScratch{block: scratchBlock, blockSize: blockSize}
}

func (s *flashScratch) base() int64 { return int64(s.block) * int64(s.blockSize) }

func (s *flashScratch) erase(dev flash.Device) error {
	return dev.Erase(s.block)
}

// writeAt lands data at byte offset dstOff within the scratch block,
// bouncing through whole pages when dstOff/len(data) aren't themselves
// page-aligned (they usually aren't: prefixes and suffixes are arbitrary
// byte counts).
func (s *flashScratch) writeAt(dev flash.Device, dstOff int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	pageSize := dev.PageSize()
	end := dstOff + len(data)
	startPage := (dstOff / pageSize) * pageSize
	endPage := ((end + pageSize - 1) / pageSize) * pageSize

	bounce := make([]byte, endPage-startPage)
	if err := dev.ReadAligned(s.base()+int64(startPage), bounce); err != nil {
		return err
	}
	copy(bounce[dstOff-startPage:], data)
	return dev.WriteAligned(s.base()+int64(startPage), bounce)
}

func (s *flashScratch) stageCopy(dev flash.Device, dstOff int, srcOff int64, length int) error {
	if length == 0 {
		return nil
	}
	tmp := make([]byte, length)
	if err := dev.ReadAligned(srcOff, tmp); err != nil {
		return err
	}
	return s.writeAt(dev, dstOff, tmp)
}

func (s *flashScratch) stageWrite(dstOff int, buf []byte) error {
	// writeAt needs a Device for its bounce read; stageWrite is always
	// followed by a publish against the same device, so rather than
	// thread dev through the Scratch interface signature for this one
	// call, BufferedWrite always calls stageCopy/stageWrite/publish
	// against the same dev within one BufferedWrite invocation. The
	// flashScratch.dev field set by the engine below carries it.
	return s.writeAt(s.dev, dstOff, buf)
}

// dev is set by writeEngine.BufferedWrite before any staging call in a
// given invocation; flashScratch.stageWrite doesn't receive a Device
// parameter (the Scratch interface keeps stageWrite symmetrical with the
// spec's stage_write(dst_off, buf, len) signature, which has no device
// argument), so writeEngine stashes it here for the duration of the call.
func (s *flashScratch) setDevice(dev flash.Device) { s.dev = dev }

func (s *flashScratch) publish(dev flash.Device, targetBlock uint32) error {
	if err := dev.Erase(targetBlock); err != nil {
		return err
	}
	return dev.CopyBlock(targetBlock, s.block)
}

// writeEngine ties a Scratch to the device it stages against and
// enforces spec §5's single-writer contract: the scratch resource is a
// singleton acquired for the duration of one BufferedWrite call and
// released on every return path, so no call may nest another write
// touching the same block. golang.org/x/sync/semaphore is grounded on
// its use throughout GoogleCloudPlatform-gcsfuse to bound concurrent
// access to a single shared resource (its lease and ratelimit packages).
type writeEngine struct {
	dev     flash.Device
	scratch Scratch
	sem     *semaphore.Weighted
}

func newWriteEngine(dev flash.Device, scratch Scratch) *writeEngine {
	return &writeEngine{dev: dev, scratch: scratch, sem: semaphore.NewWeighted(1)}
}

// BufferedWrite implements spec §4.2: it writes len(buf) bytes at
// absolute flash byte offset pos, preserving every byte outside
// [pos, pos+len(buf)) within the touched erase blocks.
func (e *writeEngine) BufferedWrite(pos int64, buf []byte) error {
	if len(buf) == 0 {
		// size == 0 is a no-op and must not erase (spec §4.2 edge case).
		return nil
	}

	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer e.sem.Release(1)

	if fs, ok := e.scratch.(*flashScratch); ok {
		fs.setDevice(e.dev)
	}

	blockSize := int64(e.dev.Geometry().UniformBlockSize())
	size := int64(len(buf))
	startBk := pos / blockSize
	lastBk := (pos + size) / blockSize
	off := pos % blockSize

	wrap := func(err error) error {
		if err == nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	if startBk == lastBk {
		log.Printf("dumbfs: buffered_write single-block pos=%d size=%d block=%d", pos, size, startBk)
		if err := e.scratch.erase(e.dev); err != nil {
			return wrap(err)
		}
		if off > 0 {
			if err := e.scratch.stageCopy(e.dev, 0, startBk*blockSize, int(off)); err != nil {
				return wrap(err)
			}
		}
		if err := e.scratch.stageWrite(int(off), buf); err != nil {
			return wrap(err)
		}
		tailStart := off + size
		if tailLen := blockSize - tailStart; tailLen > 0 {
			if err := e.scratch.stageCopy(e.dev, int(tailStart), startBk*blockSize+tailStart, int(tailLen)); err != nil {
				return wrap(err)
			}
		}
		return wrap(e.scratch.publish(e.dev, uint32(startBk)))
	}

	log.Printf("dumbfs: buffered_write multi-block pos=%d size=%d blocks=%d..%d", pos, size, startBk, lastBk)

	// 1. preserve-prefix of start_bk, publish, advance buf.
	if err := e.scratch.erase(e.dev); err != nil {
		return wrap(err)
	}
	if off > 0 {
		if err := e.scratch.stageCopy(e.dev, 0, startBk*blockSize, int(off)); err != nil {
			return wrap(err)
		}
	}
	firstChunk := buf[:blockSize-off]
	if err := e.scratch.stageWrite(int(off), firstChunk); err != nil {
		return wrap(err)
	}
	if err := e.scratch.publish(e.dev, uint32(startBk)); err != nil {
		return wrap(err)
	}
	buf = buf[blockSize-off:]

	// 2. fully-contained intermediate blocks: replaced wholesale, no
	// staging needed.
	for bk := startBk + 1; bk < lastBk; bk++ {
		if err := e.dev.Erase(uint32(bk)); err != nil {
			return wrap(err)
		}
		chunk := buf[:blockSize]
		if err := e.dev.WriteAligned(bk*blockSize, chunk); err != nil {
			return wrap(err)
		}
		buf = buf[blockSize:]
	}

	// 3. preserve-suffix of last_bk.
	tail := (pos + size) % blockSize
	if int64(len(buf)) != tail {
		// Programmer error: the caller's (pos, size) must make the
		// intermediate-block loop consume exactly size-tail bytes.
		// This is an assertion, not a runtime condition (spec §7).
		panic(fmt.Sprintf("dumbfs: buffered_write internal accounting error: want tail=%d got %d", tail, len(buf)))
	}
	if err := e.scratch.erase(e.dev); err != nil {
		return wrap(err)
	}
	if tail > 0 {
		if err := e.scratch.stageWrite(0, buf); err != nil {
			return wrap(err)
		}
	}
	if tailLen := blockSize - tail; tailLen > 0 {
		if err := e.scratch.stageCopy(e.dev, int(tail), lastBk*blockSize+tail, int(tailLen)); err != nil {
			return wrap(err)
		}
	}
	return wrap(e.scratch.publish(e.dev, uint32(lastBk)))
}
