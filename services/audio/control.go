package audio

import (
	"audiodrv-go/bus"
	"audiodrv-go/errcode"
	"audiodrv-go/types"
)

func (s *Service) handleControl(m *bus.Message) {
	if m.Topic.Len() != 3 {
		s.replyErr(m, errcode.InvalidTopic)
		return
	}
	verb, _ := m.Topic.At(2).(string)
	switch verb {
	case "enable", "disable":
		var req types.AudioIfaceReq
		switch p := m.Payload.(type) {
		case types.AudioIfaceReq:
			req = p
		default:
			if err := decode(m.Payload, &req); err != nil {
				s.replyErr(m, errcode.Of(err))
				return
			}
		}
		iface, ok := parseIface(req.Iface)
		if !ok {
			s.replyErr(m, errcode.Parameter)
			return
		}
		ctl := enableBits(iface)
		if verb == "disable" {
			ctl = disableBits(iface)
		}
		if err := s.drv.Control(ctl); err != nil {
			println("[audio]", verb, req.Iface, "failed:", err.Error())
			s.replyErr(m, errcode.Of(err))
			return
		}
		s.conn.Reply(m, types.OKReply{OK: true}, false)
		s.publishStatus()

	case "status":
		s.conn.Reply(m, s.status(), false)

	case "stats":
		s.conn.Reply(m, s.stats(), false)

	default:
		s.replyErr(m, errcode.Unsupported)
	}
}

func (s *Service) replyErr(m *bus.Message, c errcode.Code) {
	s.conn.Reply(m, types.ErrorReply{OK: false, Error: string(c)}, false)
}
