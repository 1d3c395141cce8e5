package memo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	r := New("0xAA", 10, "", "")
	assert.Equal(t, DefaultName, r.Name)
	assert.Equal(t, DefaultMessage, r.Message)

	// Only empty strings are replaced; chain data with spaces is kept.
	r = New("0xAA", 10, "   ", " ")
	assert.Equal(t, "   ", r.Name)
	assert.Equal(t, " ", r.Message)

	r = New("0xAA", 10, "Bob", "Nice!")
	assert.Equal(t, "Bob", r.Name)
	assert.Equal(t, "Nice!", r.Message)
}

func TestRecord_KeyIgnoresSenderCase(t *testing.T) {
	a := New("0xAbC", 1, "n", "m")
	b := New("0xabc", 1, "n", "m")
	c := New("0xabc", 2, "n", "m")

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestRecord_KeyFieldBoundaries(t *testing.T) {
	a := New("0xAA", 1, "ab", "c")
	b := New("0xAA", 1, "a", "bc")
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestStore_BatchThenLiveOrder(t *testing.T) {
	s := NewStore()

	batch := []Record{
		New("0x01", 1, "a", "1"),
		New("0x02", 2, "b", "2"),
		New("0x03", 3, "c", "3"),
	}
	require.Equal(t, 3, s.AppendBatch(batch))

	var live []Record
	for i := 0; i < 5; i++ {
		r := New(fmt.Sprintf("0x1%d", i), int64(100+i), "live", "msg")
		live = append(live, r)
		assert.True(t, s.AppendOne(r))
		_ = s.Snapshot()
	}

	assert.Equal(t, append(batch, live...), s.Snapshot())
}

func TestStore_Scenario(t *testing.T) {
	s := NewStore()
	s.AppendBatch([]Record{{Sender: "0xAA", Name: "Bob", Message: "Nice!", Timestamp: 100}})
	s.AppendOne(New("0xBB", 200, "Cara", "Thanks"))

	got := s.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "0xAA", got[0].Sender)
	assert.Equal(t, "Bob", got[0].Name)
	assert.Equal(t, "0xBB", got[1].Sender)
	assert.Equal(t, "Thanks", got[1].Message)
}

func TestStore_DuplicateDoesNotReorder(t *testing.T) {
	s := NewStore()
	first := New("0xAA", 100, "Bob", "Nice!")
	second := New("0xBB", 200, "Cara", "Thanks")

	s.AppendBatch([]Record{first, second})
	assert.False(t, s.AppendOne(first))
	assert.Equal(t, 0, s.AppendBatch([]Record{second, first}))

	assert.Equal(t, []Record{first, second}, s.Snapshot())
	assert.Equal(t, 2, s.Len())
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.AppendOne(New("0xAA", 1, "a", "b"))

	snap := s.Snapshot()
	snap[0].Name = "changed"

	assert.Equal(t, "a", s.Snapshot()[0].Name)
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore()

	var got []Source
	unsubscribe := s.Subscribe(func(_ Record, src Source) {
		got = append(got, src)
	})

	s.AppendBatch([]Record{New("0x01", 1, "", "")})
	s.AppendOne(New("0x02", 2, "", ""))
	s.AppendOne(New("0x02", 2, "", ""))

	unsubscribe()
	s.AppendOne(New("0x03", 3, "", ""))

	assert.Equal(t, []Source{SourceHistory, SourceLive}, got)
}

func TestStore_SnapshotAndSubscribe(t *testing.T) {
	s := NewStore()
	s.AppendOne(New("0x01", 1, "", ""))

	var later []Record
	snap, unsubscribe := s.SnapshotAndSubscribe(func(r Record, _ Source) {
		later = append(later, r)
	})
	defer unsubscribe()

	s.AppendOne(New("0x02", 2, "", ""))

	require.Len(t, snap, 1)
	require.Len(t, later, 1)
	assert.Equal(t, "0x02", later[0].Sender)
}

func TestStore_ConcurrentReadersSeeConsistentPrefix(t *testing.T) {
	s := NewStore()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.AppendOne(New("0xAA", int64(i), "", ""))
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := s.Snapshot()
				for k, r := range snap {
					if r.Timestamp != int64(k) {
						t.Errorf("record %d has timestamp %d", k, r.Timestamp)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Len())
}
