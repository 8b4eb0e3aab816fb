package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
	"github.com/redis/go-redis/v9"
)

// WeekCache stores one doctor's appointments for one week, keyed by
// (doctorID, weekStart).
type WeekCache interface {
	Get(ctx context.Context, doctorID string, weekStart time.Time) ([]model.Appointment, bool, error)
	Set(ctx context.Context, doctorID string, weekStart time.Time, appts []model.Appointment) error
	Invalidate(ctx context.Context, doctorID string, weekStart time.Time) error
}

type entry struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

func encode(appts []model.Appointment) ([]byte, error) {
	out := make([]entry, 0, len(appts))
	for _, a := range appts {
		out = append(out, entry{
			ID:        a.ID,
			DoctorID:  a.DoctorID,
			PatientID: a.PatientID,
			Date:      week.FormatDate(a.Date),
			Time:      a.Time,
		})
	}
	return json.Marshal(out)
}

func decode(raw []byte) ([]model.Appointment, error) {
	var in []entry
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make([]model.Appointment, 0, len(in))
	for _, e := range in {
		d, err := week.ParseDate(e.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Appointment{ID: e.ID, DoctorID: e.DoctorID, PatientID: e.PatientID, Date: d, Time: e.Time})
	}
	return out, nil
}

// RedisWeekCache keeps week lists as JSON strings with a TTL.
type RedisWeekCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisWeekCache(rdb *redis.Client, ttl time.Duration, prefix string) *RedisWeekCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "timetable:week"
	}
	return &RedisWeekCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *RedisWeekCache) key(doctorID string, weekStart time.Time) string {
	return c.prefix + ":" + doctorID + ":" + week.FormatDate(week.MondayOf(weekStart))
}

func (c *RedisWeekCache) Get(ctx context.Context, doctorID string, weekStart time.Time) ([]model.Appointment, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(doctorID, weekStart)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	appts, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return appts, true, nil
}

func (c *RedisWeekCache) Set(ctx context.Context, doctorID string, weekStart time.Time, appts []model.Appointment) error {
	raw, err := encode(appts)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(doctorID, weekStart), raw, c.ttl).Err()
}

func (c *RedisWeekCache) Invalidate(ctx context.Context, doctorID string, weekStart time.Time) error {
	return c.rdb.Del(ctx, c.key(doctorID, weekStart)).Err()
}

// ReadyCheck pings redis for /readyz.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}

// MemoryWeekCache is the single-instance fallback when redis is not configured.
type MemoryWeekCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

func NewMemoryWeekCache(ttl time.Duration) *MemoryWeekCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryWeekCache{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func memoryKey(doctorID string, weekStart time.Time) string {
	return doctorID + "|" + week.FormatDate(week.MondayOf(weekStart))
}

func (c *MemoryWeekCache) Get(_ context.Context, doctorID string, weekStart time.Time) ([]model.Appointment, bool, error) {
	c.mu.Lock()
	e, ok := c.entries[memoryKey(doctorID, weekStart)]
	if ok && c.now().After(e.expires) {
		delete(c.entries, memoryKey(doctorID, weekStart))
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	appts, err := decode(e.raw)
	if err != nil {
		return nil, false, err
	}
	return appts, true, nil
}

func (c *MemoryWeekCache) Set(_ context.Context, doctorID string, weekStart time.Time, appts []model.Appointment) error {
	raw, err := encode(appts)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[memoryKey(doctorID, weekStart)] = memoryEntry{raw: raw, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryWeekCache) Invalidate(_ context.Context, doctorID string, weekStart time.Time) error {
	c.mu.Lock()
	delete(c.entries, memoryKey(doctorID, weekStart))
	c.mu.Unlock()
	return nil
}
