package laco

import (
	"fmt"
	"sync"
	"testing"
)

// Benchmark state
type benchmarkState struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

type largeState struct {
	ID     int            `json:"id"`
	Data   [1024]byte     `json:"data"` // 1KB payload
	Values []string       `json:"values"`
	Index  map[string]int `json:"index"`
}

func newLargeState() largeState {
	s := largeState{Values: make([]string, 100), Index: make(map[string]int, 100)}
	for i := range 100 {
		s.Index[fmt.Sprint(i)] = i
	}
	return s
}

// Benchmark a plain set with one listener
func BenchmarkSet(b *testing.B) {
	s := New(benchmarkState{}, WithRegistry(NewRegistry()))
	s.Subscribe(func(benchmarkState, benchmarkState, Changes) {})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set(func(d *benchmarkState) { d.ID = i })
	}
}

// Benchmark set through a middleware chain
func BenchmarkSetWithMiddleware(b *testing.B) {
	benchmarks := []int{1, 10, 100}

	for _, n := range benchmarks {
		b.Run(fmt.Sprintf("middleware-%d", n), func(b *testing.B) {
			s := New(benchmarkState{}, WithRegistry(NewRegistry()))
			for range n {
				s.AddMiddleware(Guard(func(benchmarkState, string) bool { return true }))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.Set(func(d *benchmarkState) { d.ID = i })
			}
		})
	}
}

// Benchmark notification fan-out with scoped listeners
func BenchmarkScopedListeners(b *testing.B) {
	benchmarks := []int{1, 10, 100, 1000}

	for _, n := range benchmarks {
		b.Run(fmt.Sprintf("listeners-%d", n), func(b *testing.B) {
			s := New(benchmarkState{}, WithRegistry(NewRegistry()))
			for l := range n {
				field := "id"
				if l%2 == 1 {
					field = "value"
				}
				s.Subscribe(func(benchmarkState, benchmarkState, Changes) {}, field)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.Set(func(d *benchmarkState) { d.ID = i })
			}
		})
	}
}

// Benchmark listener registration/deregistration
func BenchmarkSubscribeUnsubscribe(b *testing.B) {
	s := New(benchmarkState{}, WithRegistry(NewRegistry()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		unsubscribe := s.Subscribe(func(benchmarkState, benchmarkState, Changes) {})
		unsubscribe()
	}
}

// Benchmark draft production on large values
func BenchmarkProduce(b *testing.B) {
	b.Run("small", func(b *testing.B) {
		base := benchmarkState{ID: 1, Value: "test"}

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			Produce(base, func(d *benchmarkState) { d.ID++ })
		}
	})

	b.Run("large", func(b *testing.B) {
		base := newLargeState()

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			Produce(base, func(d *largeState) { d.Values[0] = "x" })
		}
	})
}

// Benchmark concurrent writers on one store
func BenchmarkConcurrentSet(b *testing.B) {
	benchmarks := []int{1, 10, 100}

	for _, writers := range benchmarks {
		b.Run(fmt.Sprintf("writers-%d", writers), func(b *testing.B) {
			s := New(benchmarkState{}, WithRegistry(NewRegistry()))
			s.Subscribe(func(benchmarkState, benchmarkState, Changes) {}, "id")

			b.ResetTimer()
			var wg sync.WaitGroup
			setsPerWriter := b.N / writers
			if setsPerWriter == 0 {
				setsPerWriter = 1
			}

			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < setsPerWriter; i++ {
						s.Set(func(d *benchmarkState) { d.ID++ })
					}
				}()
			}

			wg.Wait()
		})
	}
}

// Benchmark registry snapshots with many stores
func BenchmarkRegistryState(b *testing.B) {
	reg := NewRegistry()
	for i := range 100 {
		New(benchmarkState{ID: i}, WithRegistry(reg))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = reg.State()
	}
}
