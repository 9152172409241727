package session

type EventListener func(s *Session, data interface{})

const EventNodeUpdated = "node-updated"

type EventNodeData struct {
	Event string `json:"event"`
	Node  string `json:"node"`
	Kind  string `json:"kind"`
}

func (s *Session) AddEventListener(event string, callback EventListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listener[event] = append(s.listener[event], callback)
}

func (s *Session) invoke(event string, data interface{}) {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	for _, listener := range s.listener[event] {
		go listener(s, data)
	}
}
