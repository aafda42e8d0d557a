package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ResultsMessage 推送给客户端的选举结果消息
type ResultsMessage struct {
	Type       string      `json:"type"`
	ElectionID uint        `json:"election_id"`
	Data       interface{} `json:"data"`
	Timestamp  int64       `json:"timestamp"`
}

// NewResultsMessage 创建结果更新消息
func NewResultsMessage(electionID uint, data interface{}) *ResultsMessage {
	return &ResultsMessage{
		Type:       "results_update",
		ElectionID: electionID,
		Data:       data,
		Timestamp:  time.Now().Unix(),
	}
}

// Client 代表一个WebSocket连接客户端
type Client struct {
	// 订阅的选举ID
	ElectionID uint

	conn *websocket.Conn

	// 消息发送通道
	send chan []byte
}

// Hub 维护活跃的客户端集合并向客户端广播消息
type Hub struct {
	// 已注册的客户端，按选举ID分组
	clients map[uint]map[*Client]bool

	// 注册请求
	register chan *Client

	// 注销请求
	unregister chan *Client

	// 互斥锁保护clients map
	mu sync.RWMutex
}

// NewHub 创建一个新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 启动Hub消息处理循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.ElectionID]; !ok {
				h.clients[client.ElectionID] = make(map[*Client]bool)
			}
			h.clients[client.ElectionID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for election %d, total clients: %d", client.ElectionID, len(h.clients[client.ElectionID]))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ElectionID]; ok {
				if _, ok := h.clients[client.ElectionID][client]; ok {
					delete(h.clients[client.ElectionID], client)
					close(client.send)
					if len(h.clients[client.ElectionID]) == 0 {
						delete(h.clients, client.ElectionID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered for election %d", client.ElectionID)
		}
	}
}

// BroadcastResults 向订阅了特定选举的所有客户端广播结果更新
func (h *Hub) BroadcastResults(electionID uint, data interface{}) {
	payload, err := json.Marshal(NewResultsMessage(electionID, data))
	if err != nil {
		log.Printf("Error converting message to JSON: %v", err)
		return
	}

	// 发送和淘汰决策都在锁内完成，避免并发广播对同一客户端
	// 先关通道再发送。发送是非阻塞的，持锁不会卡住
	h.mu.Lock()
	delivered := 0
	for client := range h.clients[electionID] {
		select {
		case client.send <- payload:
			delivered++
		default:
			// 客户端的发送缓冲区已满，关闭连接
			delete(h.clients[electionID], client)
			close(client.send)
			if len(h.clients[electionID]) == 0 {
				delete(h.clients, electionID)
			}
		}
	}
	h.mu.Unlock()
	log.Printf("Broadcast results to %d clients for election %d", delivered, electionID)
}

// RegisterClient 注册客户端到Hub
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient 从Hub中注销客户端
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
