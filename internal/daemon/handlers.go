package daemon

import (
	"log/slog"
	"net"

	"go.olrik.dev/ptyserver/internal/protocol"
	"go.olrik.dev/ptyserver/internal/ptylaunch"
)

// handleHandshake answers a Handshake request. On success it also replays
// the current child table as a stream of ReportChild messages, newest
// first, the last one carrying isLast=1 — reproducing
// iTermFileDescriptorMultiServer.c's ReportChildren() ordering.
func (s *Server) handleHandshake(conn *net.UnixConn, req *protocol.HandshakeRequest) error {
	if req.ClientMaxVersion < protocol.ProtocolVersion1 {
		slog.Warn("rejecting handshake: incompatible client version", "client_max_version", req.ClientMaxVersion)
		return protocol.WriteServerMessage(conn, protocol.ServerMessage{
			Type:      protocol.RPCHandshake,
			Handshake: &protocol.HandshakeResponse{ProtocolVersion: protocol.ProtocolVersionRejected},
		}, -1)
	}

	children := s.table.Snapshot()
	slog.Info("handshake accepted", "num_children", len(children))
	if err := protocol.WriteServerMessage(conn, protocol.ServerMessage{
		Type:      protocol.RPCHandshake,
		Handshake: &protocol.HandshakeResponse{ProtocolVersion: protocol.ProtocolVersion1, NumChildren: int32(len(children))},
	}, -1); err != nil {
		return err
	}

	for i, c := range children {
		terminated := int32(0)
		if c.Terminated {
			terminated = 1
		}
		isLast := int32(0)
		if i == len(children)-1 {
			isLast = 1
		}
		rc := &protocol.ReportChild{
			IsLast:     isLast,
			Pid:        c.Pid,
			Path:       c.Spec.Path,
			Argv:       c.Spec.Argv,
			Envp:       c.Spec.Envp,
			IsUTF8:     c.Spec.IsUTF8,
			Pwd:        c.Spec.Pwd,
			Terminated: terminated,
		}
		if err := protocol.WriteServerMessage(conn, protocol.ServerMessage{
			Type:        protocol.RPCReportChild,
			ReportChild: rc,
		}, c.MasterFD()); err != nil {
			return err
		}
	}
	return nil
}

// handleLaunch runs the PTY launch helper and answers with the result. A
// fork/exec failure is reported inline as status=-1 — it never breaks the
// connection.
func (s *Server) handleLaunch(conn *net.UnixConn, req *protocol.LaunchRequest) error {
	res, errno, err := ptylaunch.Launch(ptylaunch.Spec{
		Path:   req.Path,
		Argv:   req.Argv,
		Envp:   req.Envp,
		Pwd:    req.Pwd,
		Width:  int(req.Width),
		Height: int(req.Height),
		IsUTF8: req.IsUTF8 != 0,
	})
	if err != nil {
		slog.Warn("launch failed", "path", req.Path, "errno", errno, "error", err)
		return protocol.WriteServerMessage(conn, protocol.ServerMessage{
			Type:   protocol.RPCLaunch,
			Launch: &protocol.LaunchResponse{Status: -1, Pid: 0},
		}, -1)
	}

	pid := int32(res.Cmd.Process.Pid)
	c := s.table.Add(pid, res.Master, *req)
	res.Cmd.Process.Release() // the reaper owns waitpid from here; don't let *exec.Cmd's finalizer touch the pid
	slog.Info("launched child", "pid", pid, "path", req.Path)

	return protocol.WriteServerMessage(conn, protocol.ServerMessage{
		Type:   protocol.RPCLaunch,
		Launch: &protocol.LaunchResponse{Status: 0, Pid: pid},
	}, c.MasterFD())
}

// handleWait answers a Wait request. Removal from the table is deferred
// until this point, exactly as the original server only calls
// RemoveChild inside HandleWait after an errno==0 response.
func (s *Server) handleWait(conn *net.UnixConn, req *protocol.WaitRequest) error {
	c := s.table.Get(req.Pid)
	if c == nil {
		return protocol.WriteServerMessage(conn, protocol.ServerMessage{
			Type: protocol.RPCWait,
			Wait: &protocol.WaitResponse{Pid: req.Pid, Errno: -1},
		}, -1)
	}
	if !c.Terminated {
		return protocol.WriteServerMessage(conn, protocol.ServerMessage{
			Type: protocol.RPCWait,
			Wait: &protocol.WaitResponse{Pid: req.Pid, Errno: -2},
		}, -1)
	}

	status := c.Status
	if removed := s.table.Remove(req.Pid); removed != nil {
		removed.MasterFile.Close()
	}
	slog.Debug("wait completed, child record removed", "pid", req.Pid, "status", status)
	return protocol.WriteServerMessage(conn, protocol.ServerMessage{
		Type: protocol.RPCWait,
		Wait: &protocol.WaitResponse{Pid: req.Pid, Status: status, Errno: 0},
	}, -1)
}
