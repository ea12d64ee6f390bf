package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/trustledger/internal/adapters/ledger"
)

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the loadgen command", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		var stderr bytes.Buffer
		cmd := newRootCommand()
		cmd.SetErr(&stderr)
		cmd.SetOut(&stderr)

		convey.Convey("When the service is down", func() {
			cmd.SetArgs([]string{"--url", srv.URL, "--interactions", "1", "--identities", "1", "--log-format", "json"})
			err := cmd.Execute()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "status 503")
			convey.So(stderr.String(), convey.ShouldContainSubstring, `"msg":"starting trust ledger load run"`)
		})

		convey.Convey("When an unknown flag is given", func() {
			cmd.SetArgs([]string{"--events", "10"})
			convey.So(cmd.Execute(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the log format is unknown", func() {
			cmd.SetArgs([]string{"--url", srv.URL, "--log-format", "xml"})
			err := cmd.Execute()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "unknown log format")
		})
	})
}

func TestKeygenCommand(t *testing.T) {
	convey.Convey("Given an empty directory", t, func() {
		path := filepath.Join(t.TempDir(), "payer.json")
		var out bytes.Buffer
		cmd := newRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(&out)

		convey.Convey("When generating a keypair", func() {
			cmd.SetArgs([]string{"keygen", "--out", path})
			convey.So(cmd.Execute(), convey.ShouldBeNil)

			convey.Convey("Then the file should load as the printed payer", func() {
				kp, err := ledger.LoadKeypair(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(strings.TrimSpace(out.String()), convey.ShouldEqual, kp.PublicKey().String())

				info, err := os.Stat(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(info.Mode().Perm(), convey.ShouldEqual, os.FileMode(0o600))
			})

			convey.Convey("Then a second run should not overwrite it", func() {
				again := newRootCommand()
				again.SetOut(&bytes.Buffer{})
				again.SetArgs([]string{"keygen", "--out", path})
				err := again.Execute()
				convey.So(errors.Is(err, errKeypairExists), convey.ShouldBeTrue)
			})

			convey.Convey("Then --force should replace it with a new key", func() {
				before, _ := os.ReadFile(path)
				again := newRootCommand()
				again.SetOut(&bytes.Buffer{})
				again.SetArgs([]string{"keygen", "--out", path, "--force"})
				convey.So(again.Execute(), convey.ShouldBeNil)
				after, _ := os.ReadFile(path)
				convey.So(string(after), convey.ShouldNotEqual, string(before))
			})
		})
	})
}
