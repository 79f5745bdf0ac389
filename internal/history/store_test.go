package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplate/backend/internal/db"
	"github.com/snaplate/backend/internal/translate"
)

func stores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sql": func(t *testing.T) Store {
			d, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), false)
			require.NoError(t, err)
			t.Cleanup(func() { d.Close() })
			return NewSQLStore(d.DB())
		},
	}
}

var base = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func record(i int, at time.Time) Record {
	return NewRecord(translate.Result{
		DetectedLanguage: "Spanish",
		TranslatedText:   fmt.Sprintf("Hola %d", i),
		OriginalText:     fmt.Sprintf("Hello %d", i),
	}, []byte{0xff, 0xd8, byte(i)}, at)
}

func TestStoreContract(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("empty list", func(t *testing.T) {
				s := open(t)
				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("newest first", func(t *testing.T) {
				s := open(t)
				r1 := record(1, base)
				r2 := record(2, base.Add(time.Minute))
				r3 := record(3, base.Add(2*time.Minute))
				for _, r := range []Record{r2, r1, r3} {
					require.NoError(t, s.Insert(ctx, r))
				}

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, []uuid.UUID{r3.ID, r2.ID, r1.ID}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})
			})

			t.Run("round trip", func(t *testing.T) {
				s := open(t)
				at := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.FixedZone("CET", 3600))
				in := Record{
					ID:             uuid.New(),
					Timestamp:      at,
					TranslatedText: ptr("Hola"),
					OriginalText:   ptr(""),
					ImageData:      []byte{0xff, 0xd8, 0x00, 0x7f},
				}
				require.NoError(t, s.Insert(ctx, in))

				want := in
				want.Timestamp = time.Date(2026, 1, 2, 2, 4, 5, 123456000, time.UTC)

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, want, got[0])
				assert.Nil(t, got[0].DetectedLanguage, "never stored stays missing")
			})

			t.Run("empty image stays empty", func(t *testing.T) {
				s := open(t)
				empty := record(1, base)
				empty.ImageData = []byte{}
				missing := record(2, base.Add(time.Second))
				missing.ImageData = nil
				require.NoError(t, s.Insert(ctx, empty))
				require.NoError(t, s.Insert(ctx, missing))

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				require.Len(t, got, 2)
				assert.Nil(t, got[0].ImageData)
				assert.NotNil(t, got[1].ImageData)
				assert.Empty(t, got[1].ImageData)
			})

			t.Run("new record unchanged by round trip", func(t *testing.T) {
				s := open(t)
				want := record(1, time.Now())
				require.NoError(t, s.Insert(ctx, want))

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, want, got[0])
			})

			t.Run("empty strings and missing image", func(t *testing.T) {
				s := open(t)
				want := NewRecord(translate.Result{}, nil, base)
				require.NoError(t, s.Insert(ctx, want))

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, translate.Result{}, got[0].Result(), "empty is not unavailable")
				assert.Empty(t, got[0].ImageData)
			})

			t.Run("duplicate id", func(t *testing.T) {
				s := open(t)
				r := record(1, base)
				require.NoError(t, s.Insert(ctx, r))
				err := s.Insert(ctx, r)
				assert.ErrorIs(t, err, ErrStorage)

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				assert.Len(t, got, 1)
			})

			t.Run("n inserts m deletes", func(t *testing.T) {
				s := open(t)
				var ids []uuid.UUID
				for i := 0; i < 6; i++ {
					r := record(i, base.Add(time.Duration(i)*time.Second))
					ids = append(ids, r.ID)
					require.NoError(t, s.Insert(ctx, r))
				}
				for _, id := range ids[:2] {
					require.NoError(t, s.DeleteByID(ctx, id))
				}

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				require.Len(t, got, 4)
				for i := 1; i < len(got); i++ {
					assert.False(t, got[i].Timestamp.After(got[i-1].Timestamp))
				}
			})

			t.Run("delete unknown id", func(t *testing.T) {
				s := open(t)
				r := record(1, base)
				require.NoError(t, s.Insert(ctx, r))
				require.NoError(t, s.DeleteByID(ctx, uuid.New()))

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				assert.Len(t, got, 1)
			})

			t.Run("concurrent insert and list", func(t *testing.T) {
				s := open(t)
				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(2)
					go func(i int) {
						defer wg.Done()
						assert.NoError(t, s.Insert(ctx, record(i, base.Add(time.Duration(i)*time.Millisecond))))
					}(i)
					go func() {
						defer wg.Done()
						list, err := s.ListAll(ctx)
						if assert.NoError(t, err) {
							for j := 1; j < len(list); j++ {
								assert.False(t, list[j].Timestamp.After(list[j-1].Timestamp))
							}
						}
					}()
				}
				wg.Wait()

				got, err := s.ListAll(ctx)
				require.NoError(t, err)
				assert.Len(t, got, 20)
			})
		})
	}
}

func TestRecordResultUnavailable(t *testing.T) {
	r := Record{TranslatedText: ptr("Hola")}
	assert.Equal(t, translate.Result{
		DetectedLanguage: Unavailable,
		TranslatedText:   "Hola",
		OriginalText:     Unavailable,
	}, r.Result())
}

func TestMemoryStoreCopiesImage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	img := []byte{1, 2, 3}
	r := NewRecord(translate.Result{}, img, base)
	require.NoError(t, s.Insert(ctx, r))
	img[0] = 9

	got, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got[0].ImageData)
}
