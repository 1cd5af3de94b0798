package device_test

import (
	"sync"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/device/recording"
)

func TestDeletionQueueDrain(t *testing.T) {
	rec := recording.New(device.GLSL)
	var q device.DeletionQueue

	var wg sync.WaitGroup
	for range 8 {
		buf, err := rec.CreateBuffer(gputypes.BufferUsageVertex, 16)
		if err != nil {
			t.Fatal(err)
		}
		tex, err := rec.CreateTexture(4, 4)
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Buffer(buf)
			q.Texture(tex)
		}()
	}
	wg.Wait()

	if q.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", q.Len())
	}
	if n := q.Drain(rec); n != 16 {
		t.Errorf("Drain() = %d, want 16", n)
	}
	if rec.Live() != 0 {
		t.Errorf("%d resources still live after Drain", rec.Live())
	}
	if n := q.Drain(rec); n != 0 {
		t.Errorf("second Drain() = %d, want 0", n)
	}
}

func TestLinkErrorMessage(t *testing.T) {
	tests := []struct {
		err  *device.LinkError
		want string
	}{
		{&device.LinkError{Program: "solid"}, `device: link "solid" failed`},
		{&device.LinkError{Program: "solid", Log: "0:1: syntax error"}, `device: link "solid" failed: 0:1: syntax error`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
