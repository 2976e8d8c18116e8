package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/core"
	"github.com/PathanWasim/GhostVault-sub002/internal/migrate"
	"github.com/PathanWasim/GhostVault-sub002/internal/platform"
	"github.com/PathanWasim/GhostVault-sub002/internal/strength"
	"github.com/PathanWasim/GhostVault-sub002/internal/validate"
	"github.com/PathanWasim/GhostVault-sub002/internal/vault"
)

func main() {
	// Best effort; a vault process should not leave key material in a core
	// dump.
	_ = platform.DisableCoreDumps()

	// ---- init ----
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	initDir := initCmd.String("dir", config.Default().Dir, "vault directory")

	// ---- add ----
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	addDir := addCmd.String("dir", config.Default().Dir, "vault directory")
	addFile := addCmd.String("file", "", "file to store (stdin when empty)")
	addName := addCmd.String("name", "", "item name stored in encrypted metadata")

	// ---- get ----
	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	getDir := getCmd.String("dir", config.Default().Dir, "vault directory")
	getID := getCmd.String("id", "", "item id")
	getOut := getCmd.String("out", "", "output file (stdout when empty)")

	// ---- list ----
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listDir := listCmd.String("dir", config.Default().Dir, "vault directory")

	// ---- delete ----
	delCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	delDir := delCmd.String("dir", config.Default().Dir, "vault directory")
	delID := delCmd.String("id", "", "item id")

	// ---- passwd ----
	passwdCmd := flag.NewFlagSet("passwd", flag.ExitOnError)
	passwdDir := passwdCmd.String("dir", config.Default().Dir, "vault directory")

	// ---- strength ----
	strengthCmd := flag.NewFlagSet("strength", flag.ExitOnError)

	// ---- assess / migrate ----
	assessCmd := flag.NewFlagSet("assess", flag.ExitOnError)
	assessDir := assessCmd.String("dir", config.Default().Dir, "vault directory")
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateDir := migrateCmd.String("dir", config.Default().Dir, "vault directory")

	// ---- restore ----
	restoreCmd := flag.NewFlagSet("restore", flag.ExitOnError)
	restoreArchive := restoreCmd.String("archive", "", "backup archive path")
	restoreDest := restoreCmd.String("dest", "", "restore destination directory")

	// ---- validate ----
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateDir := validateCmd.String("dir", config.Default().Dir, "vault directory")

	// ---- audit ----
	auditCmd := flag.NewFlagSet("audit", flag.ExitOnError)
	auditDir := auditCmd.String("dir", config.Default().Dir, "vault directory")

	// ---- reset-lockout ----
	resetCmd := flag.NewFlagSet("reset-lockout", flag.ExitOnError)
	resetDir := resetCmd.String("dir", config.Default().Dir, "vault directory")

	// ---- panic ----
	panicCmd := flag.NewFlagSet("panic", flag.ExitOnError)
	panicDir := panicCmd.String("dir", config.Default().Dir, "vault directory")

	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "init":
		_ = initCmd.Parse(os.Args[2:])
		dieIf(cmdInit(*initDir))
	case "add":
		_ = addCmd.Parse(os.Args[2:])
		dieIf(cmdAdd(*addDir, *addFile, *addName))
	case "get":
		_ = getCmd.Parse(os.Args[2:])
		dieIf(cmdGet(*getDir, *getID, *getOut))
	case "list":
		_ = listCmd.Parse(os.Args[2:])
		dieIf(cmdList(*listDir))
	case "delete":
		_ = delCmd.Parse(os.Args[2:])
		dieIf(cmdDelete(*delDir, *delID))
	case "passwd":
		_ = passwdCmd.Parse(os.Args[2:])
		dieIf(cmdPasswd(*passwdDir))
	case "strength":
		_ = strengthCmd.Parse(os.Args[2:])
		dieIf(cmdStrength())
	case "assess":
		_ = assessCmd.Parse(os.Args[2:])
		dieIf(cmdAssess(*assessDir))
	case "migrate":
		_ = migrateCmd.Parse(os.Args[2:])
		dieIf(cmdMigrate(*migrateDir))
	case "restore":
		_ = restoreCmd.Parse(os.Args[2:])
		dieIf(migrate.Restore(*restoreArchive, *restoreDest))
	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		dieIf(cmdValidate(*validateDir))
	case "audit", "audit-verify":
		_ = auditCmd.Parse(os.Args[2:])
		dieIf(cmdAudit(*auditDir))
	case "reset-lockout":
		_ = resetCmd.Parse(os.Args[2:])
		dieIf(cmdResetLockout(*resetDir))
	case "panic":
		_ = panicCmd.Parse(os.Args[2:])
		dieIf(cmdPanic(*panicDir))
	default:
		usage()
	}
}

func cmdInit(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir

	master, err := promptPasswordConfirm("Master password")
	if err != nil {
		return err
	}
	res := strength.Score(string(master))
	fmt.Printf("strength: %s (%s)\n", res.Level, res.Feedback)

	panicPW, err := promptPasswordConfirm("Panic password")
	if err != nil {
		return err
	}
	decoyPW, err := promptPasswordConfirm("Decoy password")
	if err != nil {
		return err
	}

	app, err := core.Init(cfg, master, panicPW, decoyPW, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	fmt.Println("vault initialized at", dir)
	return nil
}

func cmdAdd(dir, file, name string) error {
	var data []byte
	var err error
	if file == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
		if name == "" {
			name = file
		}
	}
	if err != nil {
		return err
	}
	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}

	app, sess, err := openAndUnlock(dir)
	if err != nil {
		return err
	}
	defer app.Close()
	defer app.Vault.Lock(sess)

	id, err := app.Vault.EncryptAndStore(context.Background(), sess, data, meta)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func cmdGet(dir, id, out string) error {
	if id == "" {
		return fmt.Errorf("get: --id required")
	}
	app, sess, err := openAndUnlock(dir)
	if err != nil {
		return err
	}
	defer app.Close()
	defer app.Vault.Lock(sess)

	data, _, err := app.Vault.RetrieveAndDecrypt(context.Background(), sess, id)
	if err != nil {
		return err
	}
	if out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0600)
}

func cmdList(dir string) error {
	app, sess, err := openAndUnlock(dir)
	if err != nil {
		return err
	}
	defer app.Close()
	defer app.Vault.Lock(sess)

	metas, err := app.Vault.List(sess)
	if err != nil {
		return err
	}
	for _, m := range metas {
		fmt.Printf("%s\t%d bytes\n", m.ID, m.Size)
	}
	return nil
}

func cmdDelete(dir, id string) error {
	if id == "" {
		return fmt.Errorf("delete: --id required")
	}
	app, sess, err := openAndUnlock(dir)
	if err != nil {
		return err
	}
	defer app.Close()
	defer app.Vault.Lock(sess)
	return app.Vault.SecureDelete(sess, id)
}

func cmdPasswd(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir
	app, err := core.Open(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	oldPW, err := promptPassword("Current master password")
	if err != nil {
		return err
	}
	newPW, err := promptPasswordConfirm("New master password")
	if err != nil {
		return err
	}
	res := strength.Score(string(newPW))
	if !res.Acceptable() {
		return fmt.Errorf("new password too weak: %s", res.Feedback)
	}
	return app.Creds.ChangeMaster(oldPW, newPW, cfg.KDFIterations)
}

func cmdStrength() error {
	pw, err := promptPassword("Password to score")
	if err != nil {
		return err
	}
	res := strength.Score(string(pw))
	fmt.Printf("level: %s\nscore: %d\nfeedback: %s\n", res.Level, res.Score, res.Feedback)
	return nil
}

func cmdAssess(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir
	m := migrate.New(cfg, nil, nil)
	a := m.Assess()
	if !a.Needed() {
		fmt.Println("no migration needed")
		return nil
	}
	for _, d := range a.Details {
		fmt.Println("-", d)
	}
	return nil
}

func cmdMigrate(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir
	pw, err := unlockPassword()
	if err != nil {
		return err
	}
	open := func() (*vault.Vault, error) {
		app, err := core.Open(cfg, nil)
		if err != nil {
			return nil, err
		}
		return app.Vault, nil
	}
	m := migrate.New(cfg, open, nil)
	res, err := m.Perform(context.Background(), pw)
	for _, line := range res.Log {
		fmt.Println(line)
	}
	if err != nil {
		return err
	}
	if res.GeneratedPanicPassword != "" {
		fmt.Println("generated panic password:", res.GeneratedPanicPassword)
		fmt.Println("generated decoy password:", res.GeneratedDecoyPassword)
		fmt.Println("change both immediately")
	}
	return nil
}

func cmdValidate(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir
	app, err := core.Open(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	r := app.Validator().Run()
	fmt.Println("overall:", r.OverallLevel)
	for _, f := range r.Findings {
		if f.Level == validate.LevelOK {
			continue
		}
		fmt.Printf("[%s] %s: %s\n", f.Level, f.Category, strings.Join(f.Issues, "; "))
	}
	for _, rec := range r.Recommendations {
		fmt.Println("recommend:", rec)
	}
	return nil
}

func cmdAudit(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir
	app, err := core.Open(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, e := range app.Audit.Entries() {
		fmt.Printf("%d\t%s\t%s\n", e.TS, e.Category, e.Summary)
	}
	if err := app.Audit.Verify(); err != nil {
		return fmt.Errorf("audit chain: %w", err)
	}
	fmt.Println("chain intact")
	return nil
}

func cmdPanic(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir
	app, err := core.Open(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Fprintln(os.Stderr, "this permanently destroys every genuine item; type DESTROY to continue")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return err
	}
	if strings.TrimSpace(line) != "DESTROY" {
		return fmt.Errorf("panic: aborted")
	}
	pw, err := promptPassword("Master password")
	if err != nil {
		return err
	}
	return app.Vault.PanicWipe(pw)
}

func cmdResetLockout(dir string) error {
	cfg := config.Default()
	cfg.Dir = dir
	app, err := core.Open(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Vault.ResetLockout()
}

func openAndUnlock(dir string) (*core.App, *vault.Session, error) {
	cfg := config.Default()
	cfg.Dir = dir
	app, err := core.Open(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	pw, err := unlockPassword()
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	sess, err := app.Vault.Unlock(pw)
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	return app, sess, nil
}

// unlockPassword honors GHOSTVAULT_PASSWORD for scripted use, otherwise
// prompts. Setup and confirmation prompts never read the environment.
func unlockPassword() ([]byte, error) {
	if pw := os.Getenv("GHOSTVAULT_PASSWORD"); pw != "" {
		return []byte(pw), nil
	}
	return promptPassword("Password")
}

func promptPassword(label string) ([]byte, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return pw, err
	}
	// Piped input, read one line.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func promptPasswordConfirm(label string) ([]byte, error) {
	pw, err := promptPassword(label)
	if err != nil {
		return nil, err
	}
	again, err := promptPassword(label + " (again)")
	if err != nil {
		return nil, err
	}
	if string(pw) != string(again) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return pw, nil
}

func usage() {
	fmt.Print(`vaultctl commands:

  init           --dir path
  add            --dir path [--file f] [--name n]
  get            --dir path --id ID [--out f]
  list           --dir path
  delete         --dir path --id ID
  passwd         --dir path
  strength
  assess         --dir path
  migrate        --dir path
  restore        --archive f --dest path
  validate       --dir path
  audit          --dir path
  reset-lockout  --dir path
  panic          --dir path
`)
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
