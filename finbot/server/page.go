package server

import (
	"html"
	"strings"
)

// chatPage renders the single-page chat UI with the greeting pre-seeded.
// Replies tagged tabular by the API are rendered as tables client-side;
// everything else becomes a plain bubble.
func chatPage(greeting string) string {
	return strings.Replace(chatPageTemplate, "__GREETING__", html.EscapeString(greeting), 1)
}

const chatPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>FinBot</title>
<style>
  :root { color-scheme: dark; }
  * { box-sizing: border-box; }
  body {
    margin: 0; background: #11141a; color: #e4e7ee;
    font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
    display: flex; flex-direction: column; height: 100vh;
  }
  header { padding: 14px 20px; background: #181c25; border-bottom: 1px solid #262c3a; font-size: 18px; font-weight: 600; }
  #chat { flex: 1; overflow-y: auto; padding: 20px; display: flex; flex-direction: column; gap: 10px; }
  .bubble { max-width: 72%; padding: 10px 14px; border-radius: 14px; white-space: pre-wrap; line-height: 1.45; }
  .user { align-self: flex-end; background: #2c5282; border-bottom-right-radius: 4px; }
  .bot { align-self: flex-start; background: #1f2430; border-bottom-left-radius: 4px; }
  .bot table { border-collapse: collapse; margin-top: 6px; }
  .bot th, .bot td { border: 1px solid #3a4256; padding: 4px 10px; font-size: 13px; text-align: right; }
  .bot th:first-child, .bot td:first-child { text-align: left; }
  form { display: flex; gap: 10px; padding: 14px 20px; background: #181c25; border-top: 1px solid #262c3a; }
  input {
    flex: 1; padding: 10px 14px; border-radius: 10px; border: 1px solid #2e3646;
    background: #11141a; color: inherit; font-size: 15px; outline: none;
  }
  input:focus { border-color: #2c5282; }
  button { padding: 10px 18px; border: 0; border-radius: 10px; background: #2c5282; color: #fff; font-size: 15px; cursor: pointer; }
  button:disabled { opacity: 0.5; cursor: wait; }
</style>
</head>
<body>
<header>&#128200; FinBot</header>
<div id="chat"></div>
<form id="form">
  <input id="input" placeholder="Type your query here..." autocomplete="off" autofocus>
  <button id="send" type="submit">Send</button>
</form>
<script>
const chat = document.getElementById("chat");
const form = document.getElementById("form");
const input = document.getElementById("input");
const send = document.getElementById("send");

function addBubble(text, who, kind) {
  const div = document.createElement("div");
  div.className = "bubble " + who;
  if (kind === "tabular") {
    renderTabular(div, text);
  } else {
    div.textContent = text;
  }
  chat.appendChild(div);
  chat.scrollTop = chat.scrollHeight;
}

function renderTabular(div, text) {
  const lines = text.split("\n");
  const intro = [];
  const rows = [];
  for (const line of lines) {
    if (line.startsWith("|")) {
      const cells = line.split("|").slice(1, -1).map(c => c.trim());
      if (cells.every(c => /^-+$/.test(c))) continue;
      rows.push(cells);
    } else if (line.trim() !== "") {
      intro.push(line);
    }
  }
  if (intro.length) {
    const p = document.createElement("div");
    p.textContent = intro.join("\n");
    div.appendChild(p);
  }
  if (!rows.length) return;
  const table = document.createElement("table");
  rows.forEach((cells, i) => {
    const tr = document.createElement("tr");
    for (const cell of cells) {
      const el = document.createElement(i === 0 ? "th" : "td");
      el.textContent = cell;
      tr.appendChild(el);
    }
    table.appendChild(tr);
  });
  div.appendChild(table);
}

form.addEventListener("submit", async (e) => {
  e.preventDefault();
  const text = input.value.trim();
  if (!text) return;
  addBubble(text, "user", "plain");
  input.value = "";
  send.disabled = true;
  try {
    const res = await fetch("/api/chat", {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify({ user_input: text }),
    });
    const data = await res.json();
    addBubble(data.response || data.error || "Something went wrong.", "bot", data.kind);
  } catch (err) {
    addBubble("Something went wrong. Please try again.", "bot", "plain");
  } finally {
    send.disabled = false;
    input.focus();
  }
});

addBubble("__GREETING__", "bot", "plain");
</script>
</body>
</html>`
