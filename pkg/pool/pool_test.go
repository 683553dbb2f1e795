// Unit tests for object pools
//
// Copyright (C) 2026  gcode-toolpath authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"bytes"
	"math"
	"sync"
	"testing"
)

func TestByteBuffer(t *testing.T) {
	b := GetByteBuffer()
	if b == nil {
		t.Fatal("GetByteBuffer returned nil")
	}

	// Write some data
	b.WriteString("hello")
	b.WriteByte(' ')
	b.Write([]byte("world"))

	if b.Len() != 11 {
		t.Errorf("expected length 11, got %d", b.Len())
	}

	if string(b.Bytes()) != "hello world" {
		t.Errorf("unexpected content: %s", string(b.Bytes()))
	}

	// Return to pool
	PutByteBuffer(b)

	// Get again - should be reset
	b2 := GetByteBuffer()
	if b2.Len() != 0 {
		t.Errorf("pooled buffer should be empty, got length %d", b2.Len())
	}
	PutByteBuffer(b2)
}

func TestByteBufferLittleEndian(t *testing.T) {
	b := GetByteBuffer()
	defer PutByteBuffer(b)

	b.AppendUint16(0x0102)
	b.AppendUint32(0x03040506)
	b.AppendFloat32(1.5)

	want := []byte{0x02, 0x01, 0x06, 0x05, 0x04, 0x03}
	bits := math.Float32bits(1.5)
	want = append(want, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("expected % x, got % x", want, b.Bytes())
	}
}

func TestByteBufferWriteTo(t *testing.T) {
	b := GetByteBuffer()
	defer PutByteBuffer(b)
	b.WriteString("solid ribbon")

	var out bytes.Buffer
	n, err := b.WriteTo(&out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 12 || out.String() != "solid ribbon" {
		t.Errorf("unexpected WriteTo result %d %q", n, out.String())
	}
}

func TestByteBufferGrow(t *testing.T) {
	b := GetByteBuffer()

	// Grow and write
	b.Grow(10000)
	if b.Cap() < 10000 {
		t.Errorf("capacity should be at least 10000, got %d", b.Cap())
	}

	for i := 0; i < 200; i++ {
		b.WriteByte(byte(i % 256))
	}

	if b.Len() != 200 {
		t.Errorf("expected length 200, got %d", b.Len())
	}

	PutByteBuffer(b)
}

func TestByteBufferReset(t *testing.T) {
	b := GetByteBuffer()
	b.WriteString("test data")
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("after Reset, length should be 0, got %d", b.Len())
	}

	PutByteBuffer(b)
}

func TestByteBufferOversized(t *testing.T) {
	b := GetByteBuffer()
	b.Write(make([]byte, maxPooledSize+1))

	// Should not be pooled due to size
	PutByteBuffer(b)

	b2 := GetByteBuffer()
	if b2.Len() != 0 {
		t.Errorf("expected empty buffer, got length %d", b2.Len())
	}
	PutByteBuffer(b2)
}

func TestByteBufferNil(t *testing.T) {
	// Should not panic
	PutByteBuffer(nil)
}

func TestByteBufferPoolConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	iterations := 1000
	goroutines := 10

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				b := GetByteBuffer()
				b.WriteString("test")
				PutByteBuffer(b)
			}
		}()
	}

	wg.Wait()
}

// Benchmarks

func BenchmarkByteBufferPool(b *testing.B) {
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		buf := GetByteBuffer()
		for j := 0; j < 12; j++ {
			buf.AppendFloat32(float32(j))
		}
		PutByteBuffer(buf)
	}
}

func BenchmarkByteBufferNoPool(b *testing.B) {
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		buf := make([]byte, 0, 64)
		for j := 0; j < 12; j++ {
			buf = append(buf, byte(j), 0, 0, 0)
		}
		_ = buf
	}
}
