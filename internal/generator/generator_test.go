package generator_test

import (
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/glizzus/au-stream/internal/generator"
)

func TestUUIDV4Generator_Next_Concurrent(t *testing.T) {
	regex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	gen := generator.UUIDV4Generator{}

	var mu sync.Mutex
	seen := make(map[string]struct{})

	total := 100000
	concurrency := 10
	batchSize := total / concurrency

	var wg sync.WaitGroup
	wg.Add(concurrency)

	for range concurrency {
		go func() {
			defer wg.Done()
			for range batchSize {
				id, err := gen.Next()
				if err != nil {
					t.Error("expected no error, got:", err)
					return
				}
				mu.Lock()
				if _, ok := seen[id]; ok {
					mu.Unlock()
					t.Errorf("expected a unique ID, got duplicate: %s", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()

				if !regex.MatchString(id) {
					t.Errorf("expected valid UUID format, got %s", id)
					return
				}
			}
		}()
	}

	wg.Wait()
}

type sequence struct {
	ids []string
	err error
}

func (s *sequence) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id, nil
}

func TestKeyGenerator(t *testing.T) {
	tc := []struct {
		name   string
		prefix string
		id     string
		want   string
	}{
		{name: "sources", prefix: "sources", id: "abc", want: "sources/abc.au"},
		{name: "nested prefix", prefix: "converted/2026/", id: "abc", want: "converted/2026/abc.au"},
		{name: "no prefix", prefix: "", id: "abc", want: "abc.au"},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			gen := generator.KeyGenerator{Prefix: test.prefix, IDs: &sequence{ids: []string{test.id}}}
			got, err := gen.Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != test.want {
				t.Errorf("Next() = %q; want %q", got, test.want)
			}
		})
	}
}

func TestKeyGeneratorPropagatesErrors(t *testing.T) {
	boom := errors.New("entropy exhausted")
	gen := generator.KeyGenerator{Prefix: "sources", IDs: &sequence{err: boom}}
	if _, err := gen.Next(); !errors.Is(err, boom) {
		t.Errorf("Next() error = %v; want %v", err, boom)
	}
}
