package localdir_test

import (
	"fmt"
	"testing"

	"github.com/turbokube/assemble/pkg/localdir"
)

func TestParse(t *testing.T) {

	s, err := localdir.NewSize("123")
	if err != nil {
		t.Errorf("plain int %v", err)
	}
	if s != 123 {
		t.Errorf("plain int %d", s)
	}

	s, err = localdir.NewSize("100MB")
	if err != nil {
		t.Errorf("megabytes %v", err)
	}
	if s != 100*1024*1024 {
		t.Errorf("megabytes %d", s)
	}

	s, err = localdir.NewSize("123x")
	if err == nil {
		t.Errorf("should reject unknown unit, got %d", s)
	}

	_, err = localdir.NewSize("lots")
	scopedout := fmt.Sprintf("%v", err)
	if scopedout != "maxSize must be bytes or a size like 100MB, got: lots" {
		t.Errorf("should clarify supported format, got: %s", scopedout)
	}

}
