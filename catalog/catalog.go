// Package catalog はキャラクター画像の一覧と、シードによる決定的な抽選を提供します。
package catalog

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Catalog は静的ディレクトリ内のキャラクター画像ID（ファイル名）の集合
type Catalog struct {
	ids []string
}

// New は与えられたIDからカタログを作ります。順序はソートして固定する。
func New(ids []string) *Catalog {
	cp := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			cp = append(cp, id)
		}
	}
	sort.Strings(cp)
	return &Catalog{ids: cp}
}

// Load はdir直下のファイル名をキャラクターIDとして読み込みます。
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir %s: %w", dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	return New(ids), nil
}

// ListCharacterIDs は全IDを順序通りに返します。
func (c *Catalog) ListCharacterIDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

func (c *Catalog) Len() int {
	return len(c.ids)
}

// Sample はseedから決定的にmin(count, Len())個のIDを選びます。
// 同じシードとカタログなら常に同じ結果になる。
func (c *Catalog) Sample(seed string, count int) []string {
	if count > len(c.ids) {
		count = len(c.ids)
	}
	if count <= 0 {
		return []string{}
	}
	r := rand.New(rand.NewSource(seedValue(seed)))
	perm := r.Perm(len(c.ids))
	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = c.ids[perm[i]]
	}
	return out
}

// 数値のシードはそのまま使い、それ以外はFNVハッシュで数値化する
func seedValue(seed string) int64 {
	if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int64(h.Sum64())
}
