package repository

import "testing"

func TestWhereBuilder(t *testing.T) {
	var w where
	if w.String() != "" {
		t.Errorf("empty where = %q", w.String())
	}
	w.add("user_id = $%d", "u")
	w.add("status = $%d", "pending")
	if got := w.String(); got != " WHERE user_id = $1 AND status = $2" {
		t.Errorf("where = %q", got)
	}
	if got := w.page(0, -1); got != " LIMIT $3 OFFSET $4" {
		t.Errorf("page = %q", got)
	}
	if len(w.args) != 4 || w.args[2] != 50 || w.args[3] != 0 {
		t.Errorf("args = %v", w.args)
	}
}
