package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRedis speaks enough RESP2 for RedisCache.
type fakeRedis struct {
	ln   net.Listener
	mu   sync.Mutex
	data map[string]string
	ttls map[string]string
}

func startFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	f := &fakeRedis{ln: ln, data: make(map[string]string), ttls: make(map[string]string)}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeRedis) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeRedis) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, f.exec(args)); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for range n {
		head, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(head[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func (f *fakeRedis) exec(args []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch strings.ToLower(args[0]) {
	case "hello":
		return "-ERR unknown command 'HELLO'\r\n"
	case "ping":
		return "+PONG\r\n"
	case "get":
		v, ok := f.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "set":
		opts := strings.ToLower(strings.Join(args[3:], " "))
		if strings.HasSuffix(opts, "nx") {
			if _, exists := f.data[args[1]]; exists {
				return "$-1\r\n"
			}
			opts = strings.TrimSpace(strings.TrimSuffix(opts, "nx"))
		}
		f.data[args[1]] = args[2]
		f.ttls[args[1]] = opts
		return "+OK\r\n"
	case "setnx":
		if _, exists := f.data[args[1]]; exists {
			return ":0\r\n"
		}
		f.data[args[1]] = args[2]
		return ":1\r\n"
	case "del":
		n := 0
		for _, k := range args[1:] {
			if _, ok := f.data[k]; ok {
				delete(f.data, k)
				n++
			}
		}
		return fmt.Sprintf(":%d\r\n", n)
	default:
		return "+OK\r\n"
	}
}

func (f *fakeRedis) ttl(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	srv := startFakeRedis(t)
	c, err := NewRedisCache(ctx, RedisConfig{Addr: srv.ln.Addr().String(), KeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), 1500*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := srv.ttl("test:k"); got != "px 1500" {
		t.Fatalf("expected millisecond ttl, got %q", got)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected value %q (%v)", got, err)
	}
	ok, err := c.SetNX(ctx, "k", []byte("other"), time.Minute)
	if err != nil || ok {
		t.Fatalf("SetNX on existing key must lose: %v %v", ok, err)
	}
	ok, err = c.SetNX(ctx, "fresh", []byte("x"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX on new key must win: %v %v", ok, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestRedisCacheUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisCache(ctx, RedisConfig{Addr: addr}); err == nil {
		t.Fatalf("expected ping to fail")
	}
}
