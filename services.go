package fampp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/loykin/fampp/internal/manager"
	"github.com/loykin/fampp/internal/port"
	"github.com/loykin/fampp/internal/state"
)

// launch is the command line and connection info for one service start.
type launch struct {
	args    []string
	dir     string
	started Started
}

func (e *Environment) plan(ctx context.Context, name, bin string) (launch, error) {
	host := e.Config.Host
	switch name {
	case "php":
		p, err := port.Allocate(host, e.Config.Ports.PHP)
		if err != nil {
			return launch{}, err
		}
		addr := net.JoinHostPort(host, strconv.Itoa(p))
		return launch{
			args:    []string{"-S", addr, "-t", e.Layout.WWW()},
			dir:     e.Layout.WWW(),
			started: Started{Name: name, Host: host, Port: p, URL: "http://" + addr},
		}, nil

	case "mysql":
		basedir := filepath.Dir(filepath.Dir(bin))
		datadir := e.Layout.MySQLData()
		if empty, _ := isEmptyDir(datadir); empty && e.beforeInit != nil {
			e.beforeInit(name)
		}
		initArgs := []string{
			"--initialize-insecure",
			"--basedir=" + basedir,
			"--datadir=" + datadir,
		}
		ran, err := e.Manager.InitOnce(ctx, name, bin, initArgs, datadir, manager.StartOptions{Dir: basedir, Env: e.env.Merge(nil)})
		if err != nil {
			return launch{}, err
		}
		p := e.Config.Ports.MySQL
		return launch{
			args: []string{
				"--basedir=" + basedir,
				"--datadir=" + datadir,
				"--port=" + strconv.Itoa(p),
				"--log-error=" + e.Manager.LogPath(name),
			},
			dir:     basedir,
			started: Started{Name: name, Host: host, Port: p, User: "root", Initialized: ran},
		}, nil
	}
	return launch{}, fmt.Errorf("%s: no launch profile", name)
}

// info renders the Port / Info column of the status table.
func (e *Environment) info(name string, s manager.Status, st *state.State) string {
	host := e.Config.Host
	switch name {
	case "php":
		p := e.Config.Ports.PHP
		if svc, ok := st.Services[name]; ok && s.State == manager.StateRunning && svc.Port > 0 {
			p = svc.Port
		}
		return net.JoinHostPort(host, strconv.Itoa(p)) + "+"
	case "mysql":
		return net.JoinHostPort(host, strconv.Itoa(e.Config.Ports.MySQL))
	}
	if svc, ok := st.Services[name]; ok && svc.Port > 0 {
		return net.JoinHostPort(svc.Host, strconv.Itoa(svc.Port))
	}
	return ""
}

// isEmptyDir reports whether dir is missing or has no entries.
func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
