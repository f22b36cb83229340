package config

import "testing"

func TestBool(t *testing.T) {
	t.Setenv("FD_TEST_BOOL", "Yes")
	v, err := Bool("FD_TEST_BOOL", false)
	if err != nil || !v {
		t.Fatalf("expected true, got %v (err %v)", v, err)
	}

	t.Setenv("FD_TEST_BOOL", "off")
	v, err = Bool("FD_TEST_BOOL", true)
	if err != nil || v {
		t.Fatalf("expected false, got %v (err %v)", v, err)
	}

	t.Setenv("FD_TEST_BOOL", "maybe")
	if _, err := Bool("FD_TEST_BOOL", false); err == nil {
		t.Fatal("expected error for invalid boolean")
	}

	t.Setenv("FD_TEST_BOOL", "")
	v, err = Bool("FD_TEST_BOOL", true)
	if err != nil || !v {
		t.Fatalf("expected fallback true, got %v (err %v)", v, err)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("FD_TEST_INT", "540")
	n, err := Int("FD_TEST_INT", 0, -720)
	if err != nil || n != 540 {
		t.Fatalf("expected 540, got %d (err %v)", n, err)
	}

	t.Setenv("FD_TEST_INT", "-1")
	if _, err := Int("FD_TEST_INT", 0, 0); err == nil {
		t.Fatal("expected error below minimum")
	}
}

func TestPort(t *testing.T) {
	t.Setenv("FD_TEST_PORT", "70000")
	if _, err := Port("FD_TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("FD_TEST_PORT", "")
	p, err := Port("FD_TEST_PORT", "8085")
	if err != nil || p != "8085" {
		t.Fatalf("expected fallback 8085, got %q (err %v)", p, err)
	}
}

func TestList(t *testing.T) {
	t.Setenv("FD_TEST_LIST", " a, ,b ,c")
	got := List("FD_TEST_LIST", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %#v", got)
	}
}
