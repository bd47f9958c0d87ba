// Command snkvcli is a smoke-test / usage example for the snkv storage
// core, not a shipped driver. It opens a database and exercises column
// families, TTL, the iterator, and checkpointing end to end.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"govetachun/snkv/store"
)

func main() {
	path := flag.String("db", ":memory:", "database file path, or :memory:")
	flag.Parse()

	s, err := store.Open(*path, store.Config{})
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer s.Close()

	fmt.Println("=== default CF round-trip ===")
	must(s.Put([]byte("hello"), []byte("world")))
	v, err := s.Get([]byte("hello"))
	must(err)
	fmt.Printf("hello => %s\n", v)

	fmt.Println("=== column families ===")
	sessions, err := s.CreateCF("sessions")
	must(err)
	must(sessions.Put([]byte("user:1"), []byte("token-abc")))
	names, err := s.ListCFs()
	must(err)
	fmt.Printf("column families: %v\n", names)

	fmt.Println("=== TTL ===")
	now := time.Now().UnixMilli()
	must(s.PutTTL([]byte("ephemeral"), []byte("gone-soon"), now+50))
	time.Sleep(75 * time.Millisecond)
	_, _, err = s.GetTTL([]byte("ephemeral"))
	fmt.Printf("expired lookup status: %v\n", store.StatusOf(err))

	fmt.Println("=== iteration ===")
	must(s.Put([]byte("a"), []byte("1")))
	must(s.Put([]byte("b"), []byte("2")))
	must(s.Put([]byte("c"), []byte("3")))
	it := s.Default().NewIterator(nil)
	for !it.Eof() {
		fmt.Printf("%s => %s\n", it.Key(), it.Value())
		it.Next()
	}
	it.Close()

	fmt.Println("=== checkpoint ===")
	walFrames, checkpointed, err := s.Checkpoint(store.CheckpointPassive)
	must(err)
	fmt.Printf("checkpoint: %d frames, %d pages copied\n", walFrames, checkpointed)

	stats := s.Stats()
	fmt.Printf("stats: %+v\n", stats)
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
