// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// WebSocket接続の管理、各種APIエンドポイントの提供を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - スナップショット・MJPEGストリームの配信
//   - WebSocket経由のH.264ストリーミング制御
//   - デバイス一覧・設定・ロボットコマンドのAPI処理
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - WebSocket接続ごとにUUIDのクライアントIDを発番
//   - 複数クライアントの同時接続をサポート
package server
