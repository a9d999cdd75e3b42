// Command dbcopy copies one user's photo records between gallery databases.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/stevecastle/galleria/photos"
)

var validConflict = map[string]bool{
	"IGNORE": true, "ABORT": true, "REPLACE": true, "ROLLBACK": true, "FAIL": true,
}

func main() {
	var (
		srcPath    string
		dstPath    string
		userID     string
		onConflict string
		dryRun     bool
		verbose    bool
	)

	flag.StringVar(&srcPath, "source", "", "Path to source gallery DB")
	flag.StringVar(&dstPath, "dest", "", "Path to destination gallery DB")
	flag.StringVar(&userID, "user", "", "User ID whose photos are copied")
	flag.StringVar(&onConflict, "on-conflict", "ignore", "Conflict behavior: ignore | abort | replace | rollback | fail")
	flag.BoolVar(&dryRun, "dry-run", false, "Show what would happen without writing")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if srcPath == "" || dstPath == "" || userID == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -source <src.db> -dest <dest.db> -user <id> [-on-conflict ignore|abort|replace|rollback|fail] [-dry-run] [-v]\n", os.Args[0])
		os.Exit(2)
	}

	confVerb := strings.ToUpper(onConflict)
	if !validConflict[confVerb] {
		log.Fatalf("invalid -on-conflict value %q; use ignore|abort|replace|rollback|fail", onConflict)
	}

	db, err := openAttached(srcPath, dstPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	matched, inserted, err := copyUserPhotos(db, userID, confVerb, dryRun)
	if err != nil {
		log.Fatal(err)
	}

	if verbose || dryRun {
		log.Printf("Photos for user %q in source: %d", userID, matched)
	}
	if dryRun {
		log.Printf("Dry run: no changes written.")
		return
	}
	if verbose {
		log.Printf("Inserted %d row(s) into dest.photos (conflict=%s).", inserted, confVerb)
	} else {
		fmt.Printf("Done. Inserted %d row(s).\n", inserted)
	}
}

// openAttached opens src with dst attached as schema "dest". The pool is
// pinned to one connection because ATTACH is per connection.
func openAttached(srcPath, dstPath string) (*sql.DB, error) {
	// Make sure the destination has the photos table.
	dst, err := sql.Open("sqlite", dstPath)
	if err != nil {
		return nil, fmt.Errorf("open dest: %w", err)
	}
	if err := photos.InitializeSchema(dst); err != nil {
		dst.Close()
		return nil, fmt.Errorf("init dest schema: %w", err)
	}
	dst.Close()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", srcPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping source: %w", err)
	}
	if _, err := db.Exec(`ATTACH DATABASE ? AS dest`, dstPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach dest: %w", err)
	}
	return db, nil
}

func tableExists(db *sql.DB, schema, table string) (bool, error) {
	var cnt int
	err := db.QueryRow(`SELECT count(*) FROM `+schema+`.sqlite_master WHERE type='table' AND name=?`, table).Scan(&cnt)
	return cnt > 0, err
}

// copyUserPhotos copies userID's rows from main.photos into dest.photos.
// It returns the number of matching source rows and the number inserted.
func copyUserPhotos(db *sql.DB, userID, confVerb string, dryRun bool) (matched, inserted int64, err error) {
	if !validConflict[confVerb] {
		return 0, 0, fmt.Errorf("invalid conflict verb %q", confVerb)
	}
	for _, schema := range []string{"main", "dest"} {
		ok, err := tableExists(db, schema, "photos")
		if err != nil {
			return 0, 0, fmt.Errorf("check table %s.photos: %w", schema, err)
		}
		if !ok {
			return 0, 0, fmt.Errorf("table %s.photos not found", schema)
		}
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM main.photos WHERE user_id = ?`, userID).Scan(&matched); err != nil {
		return 0, 0, fmt.Errorf("count rows: %w", err)
	}
	if dryRun {
		return matched, 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return matched, 0, fmt.Errorf("begin tx: %w", err)
	}
	// Both tables come from photos.InitializeSchema, so column order matches.
	res, err := tx.Exec(fmt.Sprintf(`
		INSERT OR %s INTO dest.photos
		SELECT * FROM main.photos
		WHERE user_id = ?
	`, confVerb), userID)
	if err != nil {
		_ = tx.Rollback()
		return matched, 0, fmt.Errorf("insert: %w", err)
	}
	inserted, _ = res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return matched, 0, fmt.Errorf("commit: %w", err)
	}
	return matched, inserted, nil
}
