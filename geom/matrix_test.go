package geom

import (
	"testing"

	"github.com/chewxy/math32"
)

func approx(a, b float32) bool {
	return math32.Abs(a-b) < 1e-4
}

func TestMatrixApply(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
		in   Vec2
		want Vec2
	}{
		{"identity", Identity(), V2(3, 4), V2(3, 4)},
		{"translate", Translate(10, -2), V2(1, 1), V2(11, -1)},
		{"scale", Scale(2, 3), V2(1, 1), V2(2, 3)},
		{"rotate 90", Rotate(math32.Pi / 2), V2(1, 0), V2(0, 1)},
		{"translate after scale", Translate(5, 5).Multiply(Scale(2, 2)), V2(1, 1), V2(7, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.Apply(tt.in)
			if !approx(got.X, tt.want.X) || !approx(got.Y, tt.want.Y) {
				t.Errorf("Apply(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMatrixInvert(t *testing.T) {
	m := Translate(3, 4).Multiply(Rotate(0.7)).Multiply(Scale(2, 0.5))
	p := V2(12, -7)
	back := m.Invert().Apply(m.Apply(p))
	if !approx(back.X, p.X) || !approx(back.Y, p.Y) {
		t.Errorf("Invert round trip = %v, want %v", back, p)
	}
	if got := (Matrix{}).Invert(); !got.IsIdentity() {
		t.Errorf("singular Invert() = %v, want identity", got)
	}
}

func TestMatrixScaleFactor(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
		want float32
	}{
		{"identity", Identity(), 1},
		{"uniform", Scale(3, 3), 3},
		{"non-uniform takes max", Scale(2, 5), 5},
		{"rotation keeps scale", Rotate(1.1).Multiply(Scale(4, 4)), 4},
		{"translation ignored", Translate(100, 100), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.ScaleFactor(); !approx(got, tt.want) {
				t.Errorf("ScaleFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrthoCorners(t *testing.T) {
	o := Ortho(200, 100)
	apply := func(x, y float32) (float32, float32) {
		return o[0]*x + o[4]*y + o[12], o[1]*x + o[5]*y + o[13]
	}
	if x, y := apply(0, 0); !approx(x, -1) || !approx(y, 1) {
		t.Errorf("origin maps to (%v, %v), want (-1, 1)", x, y)
	}
	if x, y := apply(200, 100); !approx(x, 1) || !approx(y, -1) {
		t.Errorf("far corner maps to (%v, %v), want (1, -1)", x, y)
	}
}

func TestMat4MulIdentity(t *testing.T) {
	a := Affine(Translate(2, 3).Multiply(Scale(4, 5)))
	if got := a.Mul(Mat4Identity()); got != a {
		t.Errorf("a * I = %v, want %v", got, a)
	}
	if got := Mat4Identity().Mul(a); got != a {
		t.Errorf("I * a = %v, want %v", got, a)
	}
}
